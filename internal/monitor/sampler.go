package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sampler runs its collectors periodically and keeps the latest state.
type Sampler struct {
	collectors []Collector
	state      *State
	interval   time.Duration
	mu         sync.RWMutex
	done       chan struct{}
	stopOnce   sync.Once
	logger     *slog.Logger
}

func NewSampler(collectors []Collector, interval time.Duration, logger *slog.Logger) *Sampler {
	return &Sampler{
		collectors: collectors,
		state:      &State{},
		interval:   interval,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Default returns a sampler over CPU, memory, the current process and the
// filesystems of paths.
func Default(paths []string, interval time.Duration, logger *slog.Logger) *Sampler {
	return NewSampler([]Collector{
		NewCPUCollector(),
		NewMemoryCollector(),
		NewProcessCollector(),
		NewDiskCollector(paths),
	}, interval, logger)
}

func (s *Sampler) Start(ctx context.Context) {
	// Initial collection
	s.collect()

	go s.runLoop(ctx)

	s.logger.Info("host sampler started", "interval", s.interval, "collectors", len(s.collectors))
}

// Stop ends the sampling loop. It is safe to call more than once.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.logger.Info("host sampler stopped")
	})
}

// State returns a copy of the latest sample.
func (s *Sampler) State() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Sampler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.collect()
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *Sampler) collect() {
	next := &State{Timestamp: time.Now()}

	for _, c := range s.collectors {
		if err := c.Collect(next); err != nil {
			s.logger.Warn("host collection failed",
				"collector", c.Name(),
				"error", err,
			)
		}
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}
