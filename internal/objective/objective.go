package objective

import (
	"fmt"
	"log/slog"

	"github.com/haskel/bore/internal/config"
	"github.com/haskel/bore/internal/hyperband"
	"github.com/haskel/bore/internal/space"
)

var (
	_ hyperband.Evaluator = (*Command)(nil)
	_ hyperband.Evaluator = (*Benchmark)(nil)
)

// FromConfig builds the configured objective and the space to search. The
// configured space takes precedence; benchmarks supply their own when none
// is configured.
func FromConfig(cfg *config.Config, logger *slog.Logger) (hyperband.Evaluator, *space.Space, error) {
	sp, err := cfg.SearchSpace()
	if err != nil {
		return nil, nil, fmt.Errorf("space: %w", err)
	}

	switch cfg.Objective.Kind {
	case config.ObjectiveCommand:
		if sp == nil {
			return nil, nil, fmt.Errorf("the command objective needs a configured space")
		}
		cmd, err := NewCommand(cfg.Objective.Command, cfg.Objective.Args, cfg.Objective.LossPath, cfg.ObjectiveTimeout(), logger)
		if err != nil {
			return nil, nil, err
		}
		cmd.InfoPath = cfg.Objective.InfoPath
		return cmd, sp, nil

	default:
		b, err := Lookup(cfg.Objective.Kind, cfg.Hyperband.MaxBudget)
		if err != nil {
			return nil, nil, err
		}
		if sp == nil {
			if sp, err = b.Space(); err != nil {
				return nil, nil, err
			}
		}
		return b, sp, nil
	}
}
