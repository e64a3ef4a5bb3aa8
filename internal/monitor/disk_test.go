package monitor

import (
	"testing"
)

func TestDiskCollector_DefaultPath(t *testing.T) {
	c := NewDiskCollector(nil)
	if len(c.paths) != 1 || c.paths[0] != "/" {
		t.Errorf("expected default path /, got %v", c.paths)
	}
}

func TestDiskCollector_Collect(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCollector([]string{dir, "/nonexistent/bore/path"})

	var state State
	if err := c.Collect(&state); err != nil {
		t.Fatalf("failed to collect disk data: %v", err)
	}

	usage, ok := state.Disk[dir]
	if !ok {
		t.Fatalf("expected usage for %s, got %v", dir, state.Disk)
	}
	if usage.TotalBytes == 0 || usage.UsedBytes > usage.TotalBytes {
		t.Errorf("invalid usage: %+v", usage)
	}

	if _, ok := state.Disk["/nonexistent/bore/path"]; ok {
		t.Error("inaccessible paths should be skipped")
	}
}
