package slave

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"uptimefleet/internal/domain"
)

// CollectStats samples host telemetry for a heartbeat. Sampling failures
// leave the affected fields zero; a heartbeat never fails over stats.
func CollectStats(ctx context.Context) *domain.SlaveStats {
	out := &domain.SlaveStats{Goroutines: runtime.NumGoroutine()}

	if percs, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percs) > 0 {
		out.CPUPercent = clampPercent(percs[0])
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		out.MemPercent = clampPercent(vm.UsedPercent)
		out.MemUsed = vm.Used
		out.MemTotal = vm.Total
	}
	return out
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
