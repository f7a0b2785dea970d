// Package hostinfo collects static facts about the host the worker runs
// on. The snapshot backs the info route, giving the controller enough
// context to pick the right release artifact and to label the host in
// operator tooling. Individual probe failures degrade to zero values
// rather than failing the whole snapshot.
package hostinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot holds static host facts. Collected on demand, never cached.
type Snapshot struct {
	// OS is the operating system name (linux).
	OS string `json:"os"`

	// Arch is the Go architecture of the worker binary (amd64, arm64).
	Arch string `json:"arch"`

	// Platform is the distribution name (ubuntu, debian, fedora).
	Platform string `json:"platform"`

	// PlatformVersion is the distribution version (24.04, 13).
	PlatformVersion string `json:"platform_version"`

	// KernelVersion is the running kernel release string.
	KernelVersion string `json:"kernel_version"`

	// Hostname is the system hostname.
	Hostname string `json:"hostname"`

	// HostID is the machine's unique identifier.
	HostID string `json:"host_id"`

	// Virtualization names the hypervisor or container runtime, if any.
	Virtualization string `json:"virtualization,omitempty"`

	// CPUModel and CPUThreads describe the processor.
	CPUModel   string `json:"cpu_model"`
	CPUThreads int    `json:"cpu_threads"`

	// MemoryTotal is total RAM in bytes.
	MemoryTotal uint64 `json:"memory_total"`

	// BootTime is the host boot time as a Unix timestamp.
	BootTime uint64 `json:"boot_time"`
}

// Collect gathers a snapshot from the host.
func Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	hostInfo, err := host.InfoWithContext(ctx)
	if err == nil {
		snap.Platform = hostInfo.Platform
		snap.PlatformVersion = hostInfo.PlatformVersion
		snap.KernelVersion = hostInfo.KernelVersion
		snap.Hostname = hostInfo.Hostname
		snap.HostID = hostInfo.HostID
		snap.Virtualization = hostInfo.VirtualizationSystem
		snap.BootTime = hostInfo.BootTime
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cpuInfo, err := cpu.InfoWithContext(ctx)
	if err == nil && len(cpuInfo) > 0 {
		snap.CPUModel = cpuInfo[0].ModelName
	}
	if threads, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPUThreads = threads
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil {
		snap.MemoryTotal = memInfo.Total
	}

	return snap, nil
}
