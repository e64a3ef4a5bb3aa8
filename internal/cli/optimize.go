package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/hyperband"
	"github.com/haskel/bore/internal/logger"
	"github.com/haskel/bore/internal/objective"
	"github.com/haskel/bore/internal/space"
	"github.com/haskel/bore/internal/storage"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run hyperband with the configured objective",
	Long: `Run hyperband brackets locally. Configurations come from the configured
generator and are evaluated by the configured objective, either a benchmark
function or an external command.

Examples:
  bore optimize -c bore.yaml
  bore optimize --iterations 10 --json`,
	RunE: runOptimize,
}

var optimizeIterations int

func init() {
	optimizeCmd.Flags().IntVarP(&optimizeIterations, "iterations", "n", 0, "hyperband iterations (overrides config)")
	rootCmd.AddCommand(optimizeCmd)
}

// OptimizeOutput is the JSON summary of an optimize run.
type OptimizeOutput struct {
	RunID    string       `json:"run_id"`
	Jobs     int          `json:"jobs"`
	Failed   int          `json:"failed"`
	Config   space.Config `json:"config,omitempty"`
	Budget   float64      `json:"budget,omitempty"`
	Loss     *float64     `json:"loss,omitempty"`
	Duration string       `json:"duration"`
	Canceled bool         `json:"canceled,omitempty"`
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if optimizeIterations > 0 {
		cfg.Hyperband.Iterations = optimizeIterations
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Logs go to stderr so the summary on stdout stays parseable.
	log := logger.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	eval, sp, err := objective.FromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create objective: %w", err)
	}
	gen, err := newGenerator(cfg, sp, log)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.close(); err != nil {
			log.Error("failed to close history store", "error", err)
		}
	}()
	if err := be.restore(ctx, gen, log); err != nil {
		return err
	}

	h, err := hyperband.New(gen, eval, cfg.HyperbandOptions(), log)
	if err != nil {
		return err
	}
	if be.store != nil {
		h.OnJob(func(runID string, job generator.Job) {
			if err := be.store.Append(ctx, storage.FromJob(runID, job, time.Now())); err != nil {
				log.Error("failed to persist job", "job_id", job.ID, "error", err)
			}
		})
	}

	res, runErr := h.Run(ctx, cfg.Hyperband.Iterations)
	canceled := errors.Is(runErr, context.Canceled)
	if runErr != nil && !canceled {
		return runErr
	}

	if be.models != nil {
		if m := gen.Model(); m != nil {
			if err := be.models.SaveModel(m); err != nil {
				log.Error("failed to save classifier", "error", err)
			}
		}
	}

	out := summarize(res, canceled)
	if jsonOut {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printSummary(out)
	return nil
}

func summarize(res *hyperband.Result, canceled bool) OptimizeOutput {
	out := OptimizeOutput{
		RunID:    res.RunID,
		Jobs:     len(res.Jobs),
		Duration: res.Finished.Sub(res.Started).Round(time.Millisecond).String(),
		Canceled: canceled,
	}
	for _, j := range res.Jobs {
		if j.Result == nil {
			out.Failed++
		}
	}
	if best, ok := res.Incumbent(); ok {
		loss := best.Loss()
		out.Config = best.Config
		out.Budget = best.Budget
		out.Loss = &loss
	}
	return out
}

func printSummary(out OptimizeOutput) {
	if out.Canceled {
		fmt.Println("Run interrupted")
	}
	fmt.Printf("Run:      %s\n", out.RunID)
	fmt.Printf("Jobs:     %d (%d failed)\n", out.Jobs, out.Failed)
	fmt.Printf("Duration: %s\n", out.Duration)

	if out.Loss == nil {
		fmt.Println("No successful evaluation")
		return
	}

	fmt.Printf("Best:     %g at budget %g\n", *out.Loss, out.Budget)
	for _, k := range space.SortedKeys(out.Config) {
		fmt.Printf("  %s = %v\n", k, out.Config[k])
	}
}
