// Command console is the admin order console: a terminal UI over the
// shop's order API with live status reconciliation, plus a few scripting
// subcommands and a local stand-in backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/order-console/internal/api"
	"github.com/nhle/order-console/internal/app"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess      = 0
	ExitCodeError        = 1
	ExitCodeAuthRequired = 2
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "console",
	Short: "Manage shop orders from the terminal",
	Long: `console shows the shop's orders and keeps an open order in sync with
changes made by other admins while you edit it.

Run without a subcommand to start the interactive console.`,
	SilenceUsage: true,
	RunE:         runTUI,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to a semantic exit code for scripts.
func exitCode(err error) int {
	if errors.Is(err, app.ErrNotLoggedIn) || api.IsAuthError(err) {
		fmt.Fprintln(os.Stderr, "Run 'console login' first.")
		return ExitCodeAuthRequired
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/order-console/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newOrdersCmd(),
		newActivityCmd(),
		newWatchCmd(),
		newSetCmd(),
		newDevServerCmd(),
	)
}
