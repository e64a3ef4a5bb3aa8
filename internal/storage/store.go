// Package storage persists the evaluation history of an optimization so a
// restarted service can replay it into a fresh generator.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/space"
)

// Entry is one finished evaluation.
type Entry struct {
	RunID  string       `json:"run_id,omitempty"`
	JobID  string       `json:"job_id,omitempty"`
	Config space.Config `json:"config"`
	Budget float64      `json:"budget"`
	// Loss is nil when the evaluation failed or produced a non-finite loss.
	Loss *float64       `json:"loss,omitempty"`
	Info map[string]any `json:"info,omitempty"`
	Time time.Time      `json:"time"`
}

// Failed reports whether the entry carries no usable loss.
func (e Entry) Failed() bool {
	return e.Loss == nil
}

// Job converts the entry back into a job for replay.
func (e Entry) Job() generator.Job {
	job := generator.Job{
		ID:     e.JobID,
		Config: e.Config,
		Budget: e.Budget,
	}
	if e.Loss != nil {
		job.Result = &generator.JobResult{Loss: *e.Loss, Info: e.Info}
	}
	return job
}

// FromJob builds an entry for a finished job. NaN and +Inf losses are
// stored as failures.
func FromJob(runID string, job generator.Job, at time.Time) Entry {
	e := Entry{
		RunID:  runID,
		JobID:  job.ID,
		Config: job.Config,
		Budget: job.Budget,
		Time:   at,
	}
	if job.Result != nil {
		e.Info = job.Result.Info
		if loss := job.Result.Loss; !math.IsNaN(loss) && !math.IsInf(loss, 1) {
			e.Loss = &loss
		}
	}
	return e
}

// Store appends and replays history entries. Implementations must be safe
// for concurrent use.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Load(ctx context.Context) ([]Entry, error)
	Close() error
}

// Replay loads the history and records every entry in gen, in order.
// Entries the generator rejects, for example because the space changed, are
// logged and skipped.
func Replay(ctx context.Context, s Store, gen generator.ConfigGenerator, logger *slog.Logger) (replayed, skipped int, err error) {
	entries, err := s.Load(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load history: %w", err)
	}

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return replayed, skipped, err
		}
		if err := gen.NewResult(e.Job()); err != nil {
			logger.Warn("skipping history entry",
				"index", i,
				"job_id", e.JobID,
				"error", err,
			)
			skipped++
			continue
		}
		replayed++
	}

	return replayed, skipped, nil
}
