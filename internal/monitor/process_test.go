package monitor

import (
	"os"
	"testing"
)

func TestProcessCollector_Name(t *testing.T) {
	c := NewProcessCollector()
	if c.Name() != "process" {
		t.Errorf("expected name 'process', got %s", c.Name())
	}
}

func TestProcessCollector_Collect(t *testing.T) {
	c := NewProcessCollector()

	var state State
	if err := c.Collect(&state); err != nil {
		t.Fatalf("failed to collect process data: %v", err)
	}

	if state.Process.PID != int32(os.Getpid()) {
		t.Errorf("expected pid %d, got %d", os.Getpid(), state.Process.PID)
	}
	if state.Process.RSSBytes == 0 {
		t.Error("expected non-zero resident memory")
	}
	if state.Process.Threads <= 0 {
		t.Error("expected at least one thread")
	}

	// Second call measures CPU against the first
	if err := c.Collect(&state); err != nil {
		t.Fatalf("second collect failed: %v", err)
	}
	if state.Process.CPUPercent < 0 {
		t.Errorf("cpu percent should not be negative: %f", state.Process.CPUPercent)
	}
}

func TestProcessCollector_MissingProcess(t *testing.T) {
	c := &ProcessCollector{pid: -1}

	var state State
	if err := c.Collect(&state); err == nil {
		t.Error("expected error for an invalid pid")
	}
}
