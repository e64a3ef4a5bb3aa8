package monitor

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessCollector samples a single process, by default the current one.
type ProcessCollector struct {
	mu   sync.Mutex
	pid  int32
	proc *process.Process
}

func NewProcessCollector() *ProcessCollector {
	return &ProcessCollector{pid: int32(os.Getpid())}
}

func (c *ProcessCollector) Name() string {
	return "process"
}

func (c *ProcessCollector) Collect(s *State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The handle keeps the previous CPU times for Percent.
	if c.proc == nil {
		p, err := process.NewProcess(c.pid)
		if err != nil {
			return fmt.Errorf("process %d: %w", c.pid, err)
		}
		c.proc = p
	}

	mem, err := c.proc.MemoryInfo()
	if err != nil {
		return err
	}
	cpuPercent, err := c.proc.Percent(0)
	if err != nil {
		return err
	}
	threads, err := c.proc.NumThreads()
	if err != nil {
		return err
	}

	state := ProcessState{
		PID:        c.pid,
		RSSBytes:   mem.RSS,
		CPUPercent: cpuPercent,
		Threads:    threads,
	}

	// Not available on every platform.
	if files, err := c.proc.OpenFiles(); err == nil {
		state.OpenFiles = len(files)
	}
	if created, err := c.proc.CreateTime(); err == nil {
		state.UptimeMillis = time.Now().UnixMilli() - created
	}

	s.Process = state
	return nil
}
