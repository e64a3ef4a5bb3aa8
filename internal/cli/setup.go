package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haskel/bore/internal/config"
	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/metrics"
	"github.com/haskel/bore/internal/objective"
	"github.com/haskel/bore/internal/server"
	"github.com/haskel/bore/internal/space"
	"github.com/haskel/bore/internal/storage"
)

// optimizer is a generator the commands can serve, instrument and persist.
type optimizer interface {
	server.Generator
	SetObserver(o generator.Observer)
}

var (
	_ optimizer = (*generator.RatioEstimator)(nil)
	_ optimizer = (*generator.SequenceGenerator)(nil)
)

func newGenerator(cfg *config.Config, sp *space.Space, logger *slog.Logger) (optimizer, error) {
	opts := cfg.GeneratorOptions()
	clfOpts := cfg.ClassifierOptions(sp.Dimensions())

	switch cfg.Generator.Kind {
	case config.GeneratorRatio:
		return generator.New(sp, opts, clfOpts, logger)
	case config.GeneratorSequence:
		return generator.NewSequence(sp, opts, clfOpts, logger)
	default:
		return nil, fmt.Errorf("unknown generator kind %q", cfg.Generator.Kind)
	}
}

// serverSpace returns the configured space, falling back to the benchmark's
// when a benchmark objective is configured without one.
func serverSpace(cfg *config.Config) (*space.Space, error) {
	sp, err := cfg.SearchSpace()
	if err != nil {
		return nil, fmt.Errorf("space: %w", err)
	}
	if sp != nil {
		return sp, nil
	}
	if cfg.Objective.Kind == config.ObjectiveCommand {
		return nil, fmt.Errorf("no search space configured")
	}

	b, err := objective.Lookup(cfg.Objective.Kind, cfg.Hyperband.MaxBudget)
	if err != nil {
		return nil, err
	}
	return b.Space()
}

// backend bundles the persistence layer of a command.
type backend struct {
	store  storage.Store
	file   *storage.FileStore
	models *storage.ModelStorage
}

// openBackend opens the configured history store. The model storage is
// available only for the file backend with save_classifier set.
func openBackend(cfg *config.Config, logger *slog.Logger) (*backend, error) {
	p := cfg.Persistence
	b := &backend{}

	switch p.Backend {
	case config.BackendNone, "":
	case config.BackendFile:
		b.file = storage.NewFileStore(p.DataDir, cfg.FlushInterval(), logger)
		b.store = b.file
	case config.BackendRedis:
		rs, err := storage.NewRedisStore(p.Redis.Addr, p.Redis.Password, p.Redis.DB, p.Redis.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}
		b.store = rs
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", p.Backend)
	}

	if p.SaveClassifier {
		fs := b.file
		if fs == nil {
			fs = storage.NewFileStore(p.DataDir, cfg.FlushInterval(), logger)
		}
		b.models = storage.NewModelStorage(fs)
	}

	return b, nil
}

// restore replays the history into gen and loads saved classifier weights.
// Missing weights are not an error.
func (b *backend) restore(ctx context.Context, gen optimizer, logger *slog.Logger) error {
	if b.store != nil {
		replayed, skipped, err := storage.Replay(ctx, b.store, gen, logger)
		if err != nil {
			return err
		}
		logger.Info("history replayed", "replayed", replayed, "skipped", skipped)
	}

	if b.models != nil && b.models.ModelExists() {
		if m := gen.Model(); m != nil {
			if err := b.models.LoadModel(m); err != nil {
				logger.Warn("failed to load classifier, starting with fresh weights", "error", err)
			} else {
				logger.Info("classifier weights loaded")
			}
		}
	}
	return nil
}

func (b *backend) close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}

// newMetrics attaches Prometheus instrumentation to gen when enabled.
func newMetrics(cfg *config.Config, gen optimizer) *metrics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	m := metrics.New(cfg.Generator.Kind)
	gen.SetObserver(m)
	return m
}
