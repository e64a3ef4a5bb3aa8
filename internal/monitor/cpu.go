package monitor

import (
	"github.com/shirou/gopsutil/v4/cpu"
)

type CPUCollector struct{}

func NewCPUCollector() *CPUCollector {
	return &CPUCollector{}
}

func (c *CPUCollector) Name() string {
	return "cpu"
}

// Collect reports usage since the previous call. The first call measures
// from process start.
func (c *CPUCollector) Collect(s *State) error {
	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return err
	}

	var overall float64
	if len(percentages) > 0 {
		overall = percentages[0]
	}

	// Get per-core usage
	corePercentages, err := cpu.Percent(0, true)
	if err != nil {
		return err
	}

	s.CPU = CPUState{
		UsagePercent: overall,
		Cores:        corePercentages,
	}
	return nil
}
