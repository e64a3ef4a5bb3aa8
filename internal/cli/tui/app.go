// Package tui renders a live dashboard of a running suggestion service.
package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(
		NewModel(cfg),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running dashboard: %w", err)
	}

	return nil
}
