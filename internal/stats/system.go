package stats

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

type SystemInfo struct {
	OS           string
	Hostname     string
	SystemUptime time.Duration

	CPUCores int
	CPUUsage float64

	MemUsed      uint64
	MemTotal     uint64
	MemPercent   float64
	MemAvailable uint64

	DiskUsed    uint64
	DiskTotal   uint64
	DiskPercent float64
	DiskFree    uint64

	NetSent uint64
	NetRecv uint64

	ProcessPID    int
	ProcessUptime time.Duration
	ProcessCPU    float64
	ProcessMem    uint64

	GoVersion  string
	Goroutines int
	HeapAlloc  uint64
	GCRuns     uint32
}

// SystemProbe reads host and process figures. Network counters are
// reported relative to the moment the probe was created.
type SystemProbe struct {
	startTime   time.Time
	diskPath    string
	sentBase    uint64
	recvBase    uint64
	cpuInterval time.Duration
}

func NewSystemProbe(diskPath string) *SystemProbe {
	if diskPath == "" {
		diskPath = "/"
	}
	p := &SystemProbe{
		startTime:   time.Now(),
		diskPath:    diskPath,
		cpuInterval: 500 * time.Millisecond,
	}
	if counters, err := net.IOCounters(false); err == nil && len(counters) > 0 {
		p.sentBase = counters[0].BytesSent
		p.recvBase = counters[0].BytesRecv
	}
	return p
}

// Collect gathers what is available. Individual probes that fail leave
// their fields zero.
func (p *SystemProbe) Collect(ctx context.Context) *SystemInfo {
	info := &SystemInfo{CPUCores: runtime.NumCPU()}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.OS = h.OS
		info.Hostname = h.Hostname
		info.SystemUptime = time.Duration(h.Uptime) * time.Second
	}

	if pct, err := cpu.PercentWithContext(ctx, p.cpuInterval, false); err == nil && len(pct) > 0 {
		info.CPUUsage = pct[0]
	}

	if m, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemUsed = m.Used
		info.MemTotal = m.Total
		info.MemPercent = m.UsedPercent
		info.MemAvailable = m.Available
	}

	if d, err := disk.UsageWithContext(ctx, p.diskPath); err == nil {
		info.DiskUsed = d.Used
		info.DiskTotal = d.Total
		info.DiskPercent = d.UsedPercent
		info.DiskFree = d.Free
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		info.NetSent = counters[0].BytesSent - min(p.sentBase, counters[0].BytesSent)
		info.NetRecv = counters[0].BytesRecv - min(p.recvBase, counters[0].BytesRecv)
	}

	info.ProcessPID = os.Getpid()
	info.ProcessUptime = time.Since(p.startTime)
	if proc, err := process.NewProcessWithContext(ctx, int32(info.ProcessPID)); err == nil {
		if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
			info.ProcessCPU = pct
		}
		if m, err := proc.MemoryInfoWithContext(ctx); err == nil {
			info.ProcessMem = m.RSS
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	info.GoVersion = runtime.Version()
	info.Goroutines = runtime.NumGoroutine()
	info.HeapAlloc = ms.Alloc
	info.GCRuns = ms.NumGC

	return info
}
