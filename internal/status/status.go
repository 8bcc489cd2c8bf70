// Package status collects a resource snapshot of the host the daemon
// runs on, for the status endpoint and the system_status broadcast.
package status

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
)

// Collect gathers the current host snapshot. Individual probe failures
// leave their fields zero rather than failing the whole snapshot; only a
// cancelled context aborts.
func Collect(ctx context.Context) (protocol.SystemStatus, error) {
	var st protocol.SystemStatus

	if err := ctx.Err(); err != nil {
		return st, err
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		st.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		st.MemoryPercent = vm.UsedPercent
		st.MemoryUsedMB = vm.Used / (1024 * 1024)
		st.MemoryTotalMB = vm.Total / (1024 * 1024)
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		st.DiskPercent = du.UsedPercent
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		st.UptimeSec = up
	}
	st.Goroutines = runtime.NumGoroutine()

	return st, ctx.Err()
}
