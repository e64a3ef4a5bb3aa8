// Package monitor samples the resources of the host running the optimizer.
// Classifier training and acquisition maximization are CPU bound, so the
// debug status reports host load next to the optimizer state.
package monitor

import "time"

// Collector fills its part of a State.
type Collector interface {
	Name() string
	Collect(s *State) error
}

type CPUState struct {
	UsagePercent float64   `json:"usage_percent"`
	Cores        []float64 `json:"cores"`
}

type MemoryState struct {
	UsedBytes    uint64  `json:"used_bytes"`
	TotalBytes   uint64  `json:"total_bytes"`
	UsagePercent float64 `json:"usage_percent"`
}

// ProcessState describes the optimizer process itself.
type ProcessState struct {
	PID          int32   `json:"pid"`
	RSSBytes     uint64  `json:"rss_bytes"`
	CPUPercent   float64 `json:"cpu_percent"`
	Threads      int32   `json:"threads"`
	OpenFiles    int     `json:"open_files"`
	UptimeMillis int64   `json:"uptime_ms"`
}

type DiskState struct {
	UsedBytes    uint64  `json:"used_bytes"`
	TotalBytes   uint64  `json:"total_bytes"`
	UsagePercent float64 `json:"usage_percent"`
}

// State is one sample. Disk is keyed by path.
type State struct {
	CPU       CPUState             `json:"cpu"`
	Memory    MemoryState          `json:"memory"`
	Process   ProcessState         `json:"process"`
	Disk      map[string]DiskState `json:"disk,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

func (s *State) Clone() *State {
	clone := *s
	clone.CPU.Cores = make([]float64, len(s.CPU.Cores))
	copy(clone.CPU.Cores, s.CPU.Cores)
	if s.Disk != nil {
		clone.Disk = make(map[string]DiskState, len(s.Disk))
		for k, v := range s.Disk {
			clone.Disk[k] = v
		}
	}
	return &clone
}
