package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/server"
	"github.com/haskel/bore/internal/space"
)

func TestRunCmd_Flags(t *testing.T) {
	flags := runCmd.Flags()

	tests := []struct {
		name     string
		flagName string
		defValue string
	}{
		{"iterations", "iterations", "1"},
		{"budget", "budget", "0"},
		{"loss-path", "loss-path", "loss"},
		{"timeout", "timeout", "0s"},
		{"quiet", "quiet", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := flags.Lookup(tt.flagName)
			if flag == nil {
				t.Fatalf("flag %s not found", tt.flagName)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %s, got %s", tt.defValue, flag.DefValue)
			}
		})
	}
}

func TestExitCodes(t *testing.T) {
	if exitServerUnavailable != 75 {
		t.Errorf("exitServerUnavailable should be 75 (EX_TEMPFAIL), got %d", exitServerUnavailable)
	}
	if exitCommandNotFound != 127 {
		t.Errorf("exitCommandNotFound should be 127, got %d", exitCommandNotFound)
	}
}

type fakeAPI struct {
	suggestErr error
	failAfter  int
	suggested  int
	observed   []server.ObserveRequest
}

func (f *fakeAPI) Suggest(budget *float64) (*server.SuggestResponse, error) {
	if f.suggestErr != nil && f.suggested >= f.failAfter {
		return nil, f.suggestErr
	}
	f.suggested++
	b := 27.0
	if budget != nil {
		b = *budget
	}
	return &server.SuggestResponse{
		JobID:  "job",
		Config: space.Config{"x": float64(f.suggested)},
		Budget: b,
	}, nil
}

func (f *fakeAPI) Observe(req server.ObserveRequest) (*server.ObserveResponse, error) {
	f.observed = append(f.observed, req)
	return &server.ObserveResponse{Recorded: true, Size: len(f.observed)}, nil
}

type fakeEval struct {
	failOn float64
	cancel context.CancelFunc
}

func (e *fakeEval) Evaluate(ctx context.Context, cfg space.Config, budget float64) (*generator.JobResult, error) {
	x := cfg["x"].(float64)
	if e.cancel != nil {
		e.cancel()
		return nil, ctx.Err()
	}
	if x == e.failOn {
		return nil, errors.New("exit status 1")
	}
	return &generator.JobResult{Loss: x * budget}, nil
}

func TestWork_Iterations(t *testing.T) {
	api := &fakeAPI{}
	budget := 3.0

	n, err := work(context.Background(), api, &fakeEval{failOn: 2}, &budget, 3, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("work failed: %v", err)
	}
	if n != 3 || len(api.observed) != 3 {
		t.Fatalf("expected 3 observations, got n=%d observed=%d", n, len(api.observed))
	}

	if api.observed[0].Loss == nil || *api.observed[0].Loss != 3 {
		t.Errorf("expected loss 3 for the first job, got %v", api.observed[0].Loss)
	}
	if !api.observed[1].Failed || api.observed[1].Loss != nil {
		t.Errorf("expected the second job reported as failed, got %+v", api.observed[1])
	}
}

func TestWork_ServerUnavailable(t *testing.T) {
	api := &fakeAPI{suggestErr: errors.New("connection refused")}

	n, err := work(context.Background(), api, &fakeEval{}, nil, 2, &bytes.Buffer{})
	if !errors.Is(err, errServerUnavailable) {
		t.Errorf("expected errServerUnavailable, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected no evaluations, got %d", n)
	}
}

func TestWork_LaterSuggestFailure(t *testing.T) {
	api := &fakeAPI{suggestErr: errors.New("connection reset"), failAfter: 1}

	n, err := work(context.Background(), api, &fakeEval{}, nil, 0, &bytes.Buffer{})
	if err == nil || errors.Is(err, errServerUnavailable) {
		t.Errorf("expected a plain suggest error, got %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 evaluation before the failure, got %d", n)
	}
}

func TestWork_CanceledEvaluationNotReported(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := &fakeAPI{}

	n, err := work(ctx, api, &fakeEval{cancel: cancel}, nil, 0, &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if n != 0 || len(api.observed) != 0 {
		t.Errorf("expected the interrupted job to stay unreported, got n=%d observed=%d", n, len(api.observed))
	}
}
