package monitor

import (
	"testing"
)

func TestMemoryCollector_Name(t *testing.T) {
	c := NewMemoryCollector()
	if c.Name() != "memory" {
		t.Errorf("expected name 'memory', got %s", c.Name())
	}
}

func TestMemoryCollector_Collect(t *testing.T) {
	var state State
	if err := NewMemoryCollector().Collect(&state); err != nil {
		t.Fatalf("failed to collect memory data: %v", err)
	}

	if state.Memory.TotalBytes == 0 {
		t.Error("total bytes should not be zero")
	}

	if state.Memory.UsedBytes > state.Memory.TotalBytes {
		t.Errorf("used bytes (%d) should not exceed total (%d)", state.Memory.UsedBytes, state.Memory.TotalBytes)
	}

	if state.Memory.UsagePercent < 0 || state.Memory.UsagePercent > 100 {
		t.Errorf("invalid memory usage percent: %f", state.Memory.UsagePercent)
	}
}
