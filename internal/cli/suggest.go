package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haskel/bore/internal/space"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Ask the server for a configuration",
	Long: `Request a configuration from a running bore server.

Examples:
  bore suggest
  bore suggest --budget 9 --json`,
	RunE: runSuggest,
}

var suggestBudget float64

func init() {
	suggestCmd.Flags().Float64VarP(&suggestBudget, "budget", "b", 0, "evaluation budget (default: server maximum)")
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	client := NewClient()

	var budget *float64
	if cmd.Flags().Changed("budget") {
		budget = &suggestBudget
	}

	resp, err := client.Suggest(budget)
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Job:    %s\n", resp.JobID)
	fmt.Printf("Budget: %g\n", resp.Budget)
	fmt.Printf("Source: %s", resp.Info.Source)
	if resp.Info.Reason != "" {
		fmt.Printf(" (%s)", resp.Info.Reason)
	}
	fmt.Println()
	for _, k := range space.SortedKeys(resp.Config) {
		fmt.Printf("  %s = %v\n", k, resp.Config[k])
	}
	return nil
}
