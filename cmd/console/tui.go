package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/order-console/internal/app"
	"github.com/nhle/order-console/internal/logging"
)

func runTUI(cmd *cobra.Command, _ []string) error {
	cfg, level, err := loadConfig()
	if err != nil {
		return err
	}

	closeLog, err := logging.InitForTUI(level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	e, err := openEnv(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	p := tea.NewProgram(app.New(e.session), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running console: %w", err)
	}
	return nil
}
