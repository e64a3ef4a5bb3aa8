package monitor

import (
	"github.com/shirou/gopsutil/v4/mem"
)

type MemoryCollector struct{}

func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

func (c *MemoryCollector) Name() string {
	return "memory"
}

func (c *MemoryCollector) Collect(s *State) error {
	v, err := mem.VirtualMemory()
	if err != nil {
		return err
	}

	s.Memory = MemoryState{
		UsedBytes:    v.Used,
		TotalBytes:   v.Total,
		UsagePercent: v.UsedPercent,
	}
	return nil
}
