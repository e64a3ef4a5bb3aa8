package monitor

import (
	"github.com/shirou/gopsutil/v4/disk"
)

// DiskCollector reports usage of the filesystems holding paths, such as the
// history directory.
type DiskCollector struct {
	paths []string
}

func NewDiskCollector(paths []string) *DiskCollector {
	if len(paths) == 0 {
		paths = []string{"/"}
	}
	return &DiskCollector{paths: paths}
}

func (c *DiskCollector) Name() string {
	return "disk"
}

func (c *DiskCollector) Collect(s *State) error {
	s.Disk = make(map[string]DiskState, len(c.paths))

	for _, path := range c.paths {
		usage, err := disk.Usage(path)
		if err != nil {
			// Skip paths that are not accessible
			continue
		}

		s.Disk[path] = DiskState{
			UsedBytes:    usage.Used,
			TotalBytes:   usage.Total,
			UsagePercent: usage.UsedPercent,
		}
	}

	return nil
}
