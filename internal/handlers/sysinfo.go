package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const sysInfoTimeout = 2 * time.Second

// SysInfo is a snapshot of the controller host.
type SysInfo struct {
	GoVersion string     `json:"go_version"`
	CPU       CPUInfo    `json:"cpu"`
	Memory    MemoryInfo `json:"memory"`
	Disk      DiskInfo   `json:"disk"`
}

type CPUInfo struct {
	SystemPercent  float64 `json:"system_percent"`
	ProcessPercent float64 `json:"process_percent"`
}

type MemoryInfo struct {
	SystemTotal uint64 `json:"system_total"`
	SystemUsed  uint64 `json:"system_used"`
	SystemFree  uint64 `json:"system_free"`
	ProcessRSS  uint64 `json:"process_rss"`
}

type DiskInfo struct {
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

// SysInfoFunc collects a host snapshot.
type SysInfoFunc func(ctx context.Context) (SysInfo, error)

// collectSysInfo reads host statistics through gopsutil. Individual reads
// that fail leave their fields zero; only a failed memory read fails the
// whole snapshot.
func collectSysInfo(ctx context.Context) (SysInfo, error) {
	info := SysInfo{GoVersion: runtime.Version()}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		info.CPU.SystemPercent = pct[0]
	}

	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SysInfo{}, err
	}
	info.Memory.SystemTotal = vmem.Total
	info.Memory.SystemUsed = vmem.Used
	info.Memory.SystemFree = vmem.Available

	if usage, err := disk.UsageWithContext(ctx, "/"); err == nil {
		info.Disk = DiskInfo{Total: usage.Total, Used: usage.Used, Free: usage.Free}
	}

	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			info.Memory.ProcessRSS = mi.RSS
		}
		if pct, err := p.CPUPercentWithContext(ctx); err == nil {
			info.CPU.ProcessPercent = pct
		}
	}
	return info, nil
}

// @Summary      Host statistics
// @Tags         system
// @Produce      json
// @Success      200  {object}  SysInfo
// @Failure      500  {object}  map[string]string
// @Router       /sysinfo [get]
func (h *Handler) sysInfo(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sysInfoTimeout)
	defer cancel()

	info, err := h.opts.SysInfo(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to read host statistics", "sysinfo_failed", err)
		return
	}
	c.JSON(http.StatusOK, info)
}
