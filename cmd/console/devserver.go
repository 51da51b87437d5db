package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/nhle/order-console/internal/devserver"
	"github.com/nhle/order-console/internal/logging"
)

func newDevServerCmd() *cobra.Command {
	var (
		addr      string
		cfg       devserver.Config
		secret    string
		echoDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local order API with a live event channel",
		Long: `Run an in-memory stand-in for the shop backend: the REST API under
/api and the event websocket under /ws. Every status change is broadcast
to every connected console, the sender included.

Point two consoles at it to watch one admin's edits reach the other.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := logging.LevelInfo
			if logLevel != "" {
				level = logging.ParseLevel(logLevel)
			}
			logging.InitForCLI(level)

			cfg.Secret = []byte(secret)
			cfg.EchoDelay = echoDelay
			srv, err := devserver.New(cfg)
			if err != nil {
				return err
			}

			fmt.Printf("Serving on %s (log in as %s)\n", text.FgGreen.Sprint(addr), cfg.AdminEmail)
			return srv.Run(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":2000", "listen address")
	cmd.Flags().StringVar(&cfg.AdminEmail, "admin-email", "admin@example.com", "admin login email")
	cmd.Flags().StringVar(&cfg.AdminPassword, "admin-password", "admin", "admin login password")
	cmd.Flags().StringVar(&secret, "secret", "", "token signing secret (random when empty)")
	cmd.Flags().DurationVar(&echoDelay, "echo-delay", 0, "hold back every change notification")
	cmd.Flags().BoolVar(&cfg.NoSeed, "no-seed", false, "start without sample orders")
	return cmd
}
