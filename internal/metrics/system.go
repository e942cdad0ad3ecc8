package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// SystemSampler periodically refreshes the Registry's System gauges from
// gopsutil and the Go runtime. It owns no state of its own beyond the
// last smoothed CPU reading — everything observable lives on the
// Registry.
type SystemSampler struct {
	registry   *Registry
	interval   time.Duration
	cpuPercent float64
}

// NewSystemSampler builds a sampler that updates registry every
// interval when Run is called.
func NewSystemSampler(registry *Registry, interval time.Duration) *SystemSampler {
	return &SystemSampler{registry: registry, interval: interval}
}

// Run samples until ctx is cancelled. It is meant to be started in its
// own goroutine by the process's main.
func (s *SystemSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *SystemSampler) sample() {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		const alpha = 0.3
		if s.cpuPercent == 0 {
			s.cpuPercent = percents[0]
		} else {
			s.cpuPercent = alpha*percents[0] + (1-alpha)*s.cpuPercent
		}
		s.registry.System.CPUPercent.Set(s.cpuPercent)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s.registry.System.HeapAllocBytes.Set(float64(mem.HeapAlloc))
	s.registry.System.Goroutines.Set(float64(runtime.NumGoroutine()))
}
