package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/nhle/order-console/internal/model"
)

func newLoginCmd() *cobra.Command {
	var creds model.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Long: `Log in to the order API. The session token is kept in the system
keyring and reused by every other command until 'console logout'.

Missing email or password are prompted for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if creds.Email == "" || creds.Password == "" {
				if err := promptCredentials(&creds); err != nil {
					return err
				}
			}

			e, err := openCLIEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			user, err := e.session.Login(cmd.Context(), creds)
			if err != nil {
				return fmt.Errorf("logging in: %w", err)
			}
			fmt.Printf("Logged in as %s\n", text.FgGreen.Sprint(user.Email))
			return nil
		},
	}

	cmd.Flags().StringVar(&creds.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "admin password")
	return cmd
}

func promptCredentials(creds *model.Credentials) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&creds.Email).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return errors.New("enter an email address")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&creds.Password),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}
	creds.Email = strings.TrimSpace(creds.Email)
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			e, err := openCLIEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			e.session.Logout()
			fmt.Println("Logged out.")
			return nil
		},
	}
}
