package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haskel/bore/internal/hyperband"
	"github.com/haskel/bore/internal/logger"
	"github.com/haskel/bore/internal/objective"
	"github.com/haskel/bore/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <command> [args...]",
	Short: "Evaluate suggested configurations with a command",
	Long: `Run as a worker of a bore server: ask for a configuration, evaluate it
with the command and report the loss, repeatedly.

The command receives {"config": ..., "budget": ...} on stdin, the same data
in BORE_CONFIG and BORE_BUDGET, and one BORE_PARAM_<NAME> variable per
parameter. It must print a JSON document holding the loss on stdout. A
command that exits non-zero is reported as a failed evaluation.

Exit codes:
  0    All iterations finished
  75   Server unreachable (no evaluation started)
  127  Command not found`,
	Example: `  bore run -n 20 -- python train.py
  bore run --budget 9 --loss-path metrics.val_loss ./eval.sh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runIterations int
	runBudget     float64
	runLossPath   string
	runTimeout    time.Duration
	runQuiet      bool
)

func init() {
	runCmd.Flags().IntVarP(&runIterations, "iterations", "n", 1, "evaluations to run (0 until interrupted)")
	runCmd.Flags().Float64VarP(&runBudget, "budget", "b", 0, "evaluation budget (default: server maximum)")
	runCmd.Flags().StringVar(&runLossPath, "loss-path", "loss", "gjson path of the loss in the command output")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "timeout of one evaluation (0 for none)")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "suppress bore output")
	runCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(runCmd)
}

const (
	exitServerUnavailable = 75 // EX_TEMPFAIL from sysexits.h
	exitCommandNotFound   = 127
)

// askTeller is the part of the API client a worker uses.
type askTeller interface {
	Suggest(budget *float64) (*server.SuggestResponse, error)
	Observe(req server.ObserveRequest) (*server.ObserveResponse, error)
}

// errServerUnavailable is returned when the first suggestion fails.
var errServerUnavailable = errors.New("server unavailable")

func runRun(cmd *cobra.Command, args []string) error {
	if _, err := exec.LookPath(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "bore: %v\n", err)
		os.Exit(exitCommandNotFound)
	}

	level := "info"
	if runQuiet {
		level = "error"
	} else if verbose {
		level = "debug"
	}
	log := logger.NewWithWriter(os.Stderr, level, "text")

	eval, err := objective.NewCommand(args[0], args[1:], runLossPath, runTimeout, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var budget *float64
	if cmd.Flags().Changed("budget") {
		budget = &runBudget
	}

	out := io.Writer(os.Stderr)
	if runQuiet {
		out = io.Discard
	}

	n, err := work(ctx, NewClient(), eval, budget, runIterations, out)
	if errors.Is(err, errServerUnavailable) {
		fmt.Fprintf(os.Stderr, "bore: %v\n", err)
		os.Exit(exitServerUnavailable)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(out, "bore: interrupted after %d evaluations\n", n)
		return nil
	}
	return err
}

// work runs the suggest, evaluate, observe loop. iterations <= 0 runs until
// ctx is done. It returns the number of reported evaluations.
func work(ctx context.Context, api askTeller, eval hyperband.Evaluator, budget *float64, iterations int, out io.Writer) (int, error) {
	done := 0
	for iterations <= 0 || done < iterations {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		s, err := api.Suggest(budget)
		if err != nil {
			if done == 0 {
				return done, fmt.Errorf("%w: %w", errServerUnavailable, err)
			}
			return done, fmt.Errorf("suggest: %w", err)
		}

		req := server.ObserveRequest{JobID: s.JobID}
		res, err := eval.Evaluate(ctx, s.Config, s.Budget)
		switch {
		case err != nil && ctx.Err() != nil:
			// The interrupted evaluation stays pending on the server.
			return done, ctx.Err()
		case err != nil:
			fmt.Fprintf(out, "bore: job %s failed: %v\n", s.JobID, err)
			req.Failed = true
		default:
			req.Loss = &res.Loss
			req.Info = res.Info
		}

		if _, err := api.Observe(req); err != nil {
			return done, fmt.Errorf("observe: %w", err)
		}
		done++

		if !req.Failed {
			fmt.Fprintf(out, "bore: job %s budget=%g loss=%g\n", s.JobID, s.Budget, *req.Loss)
		}
	}
	return done, nil
}
