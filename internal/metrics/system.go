package metrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// StartSystemSampler periodically refreshes the process resource gauges until
// ctx is cancelled. Falls back to system-wide memory when per-process stats
// are unavailable.
func StartSystemSampler(ctx context.Context, logger zerolog.Logger, interval time.Duration) {
	log := logger.With().Str("component", "system_sampler").Logger()

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Error().Err(err).Msg("failed to open process handle")
		proc = nil
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		sample(proc, log)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sample(proc, log)
			}
		}
	}()
}

func sample(proc *process.Process, log zerolog.Logger) {
	goroutines.Set(float64(runtime.NumGoroutine()))

	if proc != nil {
		if info, err := proc.MemoryInfo(); err == nil {
			memoryBytes.Set(float64(info.RSS))
		}
		if pct, err := proc.Percent(0); err == nil {
			cpuPercent.Set(pct)
		}
		return
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		memoryBytes.Set(float64(vmem.Used))
	}
}
