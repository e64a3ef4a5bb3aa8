package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/haskel/bore/internal/cli/tui"
)

var (
	refreshInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"tui"},
	Short:   "Launch interactive dashboard",
	Long: `Launch an interactive terminal dashboard following the record of a
running bore server: best configuration, rung sizes and recent evaluations.

Examples:
  bore watch                    # Basic launch with default settings
  bore watch --refresh 5s       # Slower refresh rate
  bore watch --host 10.0.0.1    # Connect to remote server`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&refreshInterval, "refresh", 2*time.Second, "dashboard refresh interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// The rung threshold display follows the configured initial design.
	minRung := 0
	if cfg, err := loadConfig(); err == nil {
		minRung = cfg.Generator.NumRandomInit
	}

	config := tui.Config{
		ServerURL:       GetServerURL(),
		RefreshInterval: refreshInterval,
		User:            user,
		Password:        password,
		MinRungSize:     minRung,
	}

	return tui.Run(cmd.Context(), config)
}
