package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haskel/bore/internal/server"
	"github.com/haskel/bore/internal/space"
)

var observeCmd = &cobra.Command{
	Use:   "observe <job-id>",
	Short: "Report an evaluation result to the server",
	Long: `Report the loss of a suggested configuration. The job ID comes from
bore suggest. Results of configurations the server did not suggest can be
reported with --params and --budget instead.

Examples:
  bore observe 3f2a... --loss 0.124
  bore observe 3f2a... --failed
  bore observe --params '{"lr":0.01}' --budget 27 --loss 0.3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runObserve,
}

var (
	observeLoss   float64
	observeFailed bool
	observeBudget float64
	observeParams string
	observeInfo   string
)

func init() {
	addObserveFlags(observeCmd)
	rootCmd.AddCommand(observeCmd)
}

func addObserveFlags(cmd *cobra.Command) {
	cmd.Flags().Float64VarP(&observeLoss, "loss", "l", 0, "observed loss")
	cmd.Flags().BoolVar(&observeFailed, "failed", false, "the evaluation failed")
	cmd.Flags().Float64VarP(&observeBudget, "budget", "b", 0, "evaluation budget (required without a job ID)")
	cmd.Flags().StringVar(&observeParams, "params", "", "configuration as a JSON object (required without a job ID)")
	cmd.Flags().StringVar(&observeInfo, "info", "", "extra information as a JSON object")
}

func runObserve(cmd *cobra.Command, args []string) error {
	req, err := buildObserveRequest(cmd, args)
	if err != nil {
		return err
	}

	resp, err := NewClient().Observe(req)
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

	fmt.Printf("Recorded (record size %d)\n", resp.Size)
	if !resp.Persisted && verbose {
		fmt.Println("Result was not persisted by the server")
	}
	return nil
}

func buildObserveRequest(cmd *cobra.Command, args []string) (server.ObserveRequest, error) {
	var req server.ObserveRequest
	if len(args) == 1 {
		req.JobID = args[0]
	}

	switch {
	case observeFailed:
		req.Failed = true
	case cmd.Flags().Changed("loss"):
		req.Loss = &observeLoss
	default:
		return req, fmt.Errorf("either --loss or --failed is required")
	}

	if cmd.Flags().Changed("budget") {
		req.Budget = &observeBudget
	}
	if observeParams != "" {
		var cfg space.Config
		if err := json.Unmarshal([]byte(observeParams), &cfg); err != nil {
			return req, fmt.Errorf("invalid --params: %w", err)
		}
		req.Config = cfg
	}
	if observeInfo != "" {
		if err := json.Unmarshal([]byte(observeInfo), &req.Info); err != nil {
			return req, fmt.Errorf("invalid --info: %w", err)
		}
	}

	if req.JobID == "" && (req.Config == nil || req.Budget == nil) {
		return req, fmt.Errorf("--params and --budget are required without a job ID")
	}
	return req, nil
}
