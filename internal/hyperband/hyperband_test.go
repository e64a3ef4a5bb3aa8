package hyperband

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/space"
)

type fakeGenerator struct {
	next    float64
	budgets []float64
	jobs    []generator.Job
}

func (g *fakeGenerator) GetConfig(ctx context.Context, budget float64) (generator.Suggestion, error) {
	g.budgets = append(g.budgets, budget)
	g.next += 0.01
	return generator.Suggestion{Config: space.Config{"x": g.next}}, nil
}

func (g *fakeGenerator) NewResult(job generator.Job) error {
	g.jobs = append(g.jobs, job)
	return nil
}

type fakeEvaluator struct {
	calls  int
	failAt int
	cancel context.CancelFunc
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, cfg space.Config, budget float64) (*generator.JobResult, error) {
	e.calls++
	if e.cancel != nil && e.calls == e.failAt {
		e.cancel()
		return nil, ctx.Err()
	}
	if e.calls == e.failAt {
		return nil, errors.New("evaluation crashed")
	}
	// Larger x is better, more budget is better.
	return &generator.JobResult{Loss: (1 - cfg["x"].(float64)) / budget}, nil
}

func TestBudgets(t *testing.T) {
	got := Budgets(0.01, 1, 3)
	want := []float64{1.0 / 81, 1.0 / 27, 1.0 / 9, 1.0 / 3, 1}

	if len(got) != len(want) {
		t.Fatalf("expected %d budgets, got %v", len(want), got)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("budget %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if n := MaxSHIter(1, 9, 3); n != 3 {
		t.Errorf("MaxSHIter(1, 9, 3) = %d, want 3", n)
	}
	if n := MaxSHIter(1, 1, 3); n != 1 {
		t.Errorf("MaxSHIter(1, 1, 3) = %d, want 1", n)
	}
}

func TestDefaultGamma(t *testing.T) {
	if g := DefaultGamma(3); math.Abs(g-1.0/3) > 1e-15 {
		t.Errorf("expected 1/3, got %v", g)
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"default", DefaultOptions(), false},
		{"eta one", Options{Eta: 1, MinBudget: 1, MaxBudget: 9}, true},
		{"zero min", Options{Eta: 3, MinBudget: 0, MaxBudget: 9}, true},
		{"max below min", Options{Eta: 3, MinBudget: 9, MaxBudget: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBracket(t *testing.T) {
	h, err := New(&fakeGenerator{}, &fakeEvaluator{}, Options{Eta: 3, MinBudget: 1, MaxBudget: 9}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		iteration   int
		wantNs      []int
		wantBudgets []float64
	}{
		{0, []int{9, 3, 1}, []float64{1, 3, 9}},
		{1, []int{3, 1}, []float64{3, 9}},
		{2, []int{3}, []float64{9}},
		{3, []int{9, 3, 1}, []float64{1, 3, 9}},
	}

	for _, tt := range tests {
		ns, budgets := h.Bracket(tt.iteration)
		if len(ns) != len(tt.wantNs) {
			t.Fatalf("iteration %d: expected %v, got %v", tt.iteration, tt.wantNs, ns)
		}
		for i := range ns {
			if ns[i] != tt.wantNs[i] {
				t.Errorf("iteration %d stage %d: expected %d configs, got %d", tt.iteration, i, tt.wantNs[i], ns[i])
			}
			if math.Abs(budgets[i]-tt.wantBudgets[i]) > 1e-9 {
				t.Errorf("iteration %d stage %d: expected budget %v, got %v", tt.iteration, i, tt.wantBudgets[i], budgets[i])
			}
		}
	}
}

func TestBracket_FirstStageSizes(t *testing.T) {
	h, err := New(&fakeGenerator{}, &fakeEvaluator{}, Options{Eta: 3, MinBudget: 0.01, MaxBudget: 1}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// The bracket count is floored before scaling by eta^s.
	want := []int{81, 27, 9, 6, 5}
	for i, n0 := range want {
		ns, _ := h.Bracket(i)
		if ns[0] != n0 {
			t.Errorf("iteration %d: expected %d configs in the first stage, got %d", i, n0, ns[0])
		}
	}
}

func TestRun_PromotesBest(t *testing.T) {
	gen := &fakeGenerator{}
	h, _ := New(gen, &fakeEvaluator{}, Options{Eta: 3, MinBudget: 1, MaxBudget: 9}, nil)

	var seen []string
	h.OnJob(func(runID string, job generator.Job) { seen = append(seen, job.ID) })

	res, err := h.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 9 configs at budget 1, 3 at budget 3, 1 at budget 9.
	if len(res.Jobs) != 13 || len(gen.jobs) != 13 || len(seen) != 13 {
		t.Fatalf("expected 13 jobs, got %d (generator saw %d, hook saw %d)", len(res.Jobs), len(gen.jobs), len(seen))
	}
	for _, b := range gen.budgets {
		if b != 1 {
			t.Errorf("expected configs requested at the first stage budget, got %v", b)
		}
	}

	best, ok := res.Incumbent()
	if !ok {
		t.Fatal("expected incumbent")
	}
	if best.Budget != 9 {
		t.Errorf("expected incumbent at max budget, got %v", best.Budget)
	}
	// The last sampled configuration has the largest x.
	if x := best.Config["x"].(float64); math.Abs(x-0.09) > 1e-9 {
		t.Errorf("expected best configuration promoted to the top, got x=%v", x)
	}
	if res.RunID == "" || res.Jobs[0].ID == "" {
		t.Error("expected run and job identifiers")
	}
}

func TestRun_FailedEvaluationRecorded(t *testing.T) {
	gen := &fakeGenerator{}
	h, _ := New(gen, &fakeEvaluator{failAt: 1}, Options{Eta: 3, MinBudget: 9, MaxBudget: 9}, nil)

	res, err := h.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(res.Jobs))
	}
	if res.Jobs[0].Result != nil || !math.IsInf(res.Jobs[0].Loss(), 1) {
		t.Errorf("expected failed job with +Inf loss, got %+v", res.Jobs[0])
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := &fakeGenerator{}
	h, _ := New(gen, &fakeEvaluator{failAt: 3, cancel: cancel}, Options{Eta: 3, MinBudget: 1, MaxBudget: 9}, nil)

	res, err := h.Run(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(res.Jobs) != 2 {
		t.Errorf("expected 2 finished jobs, got %d", len(res.Jobs))
	}
}

func TestIncumbent_Empty(t *testing.T) {
	r := &Result{Jobs: []generator.Job{{Budget: 1}}}
	if _, ok := r.Incumbent(); ok {
		t.Error("expected no incumbent when every job failed")
	}
}
