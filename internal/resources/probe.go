// Package resources implements the Resource Probe (C3): on-demand and
// periodic CPU/RAM/disk/GPU sampling. CPU measurement uses gopsutil's
// interval-delta helpers rather than a single-shot reading, grounded on
// the original psutil-based process_tracker.py; GPU sampling always
// shells out to nvidia-smi (via the Shell Executor), grounded on
// platform_detector.py's _detect_gpu.
package resources

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/skiffhost/skiffd/internal/models"
)

// Probe samples system and per-process resources.
type Probe struct {
	diskRoot string
	gpu      *GPUSampler

	stopCh chan struct{}
	mu     struct{} // placeholder to keep gofmt grouping stable
}

func NewProbe(diskRoot string, gpu *GPUSampler) *Probe {
	if diskRoot == "" {
		diskRoot = "/"
	}
	return &Probe{diskRoot: diskRoot, gpu: gpu}
}

// SampleSystem returns one whole-host measurement.
func (p *Probe) SampleSystem(ctx context.Context) (models.SystemSample, error) {
	sample := models.SystemSample{Timestamp: time.Now()}

	percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err == nil && len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sample.MemUsedBytes = vm.Used
		sample.MemTotalBytes = vm.Total
	}

	if usage, err := disk.UsageWithContext(ctx, p.diskRoot); err == nil {
		sample.DiskUsedBytes = usage.Used
		sample.DiskTotalBytes = usage.Total
	}

	if counters, err := psnet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		sample.NetRecvBytes = counters[0].BytesRecv
		sample.NetSentBytes = counters[0].BytesSent
	}

	if p.gpu != nil {
		if g, err := p.gpu.Sample(ctx); err == nil {
			sample.GPU = g
		}
	}

	return sample, nil
}

// SampleProcess returns per-process CPU, memory, thread count, fd
// count, and IO counters. GPU attribution is left nil: attributing GPU
// memory to one process requires a vendor API this probe does not
// assume is present.
func (p *Probe) SampleProcess(ctx context.Context, pid int32) (models.ResourceSample, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return models.ResourceSample{}, err
	}

	sample := models.ResourceSample{Timestamp: time.Now()}

	if pct, err := proc.PercentWithContext(ctx, 200*time.Millisecond); err == nil {
		sample.CPUPercent = pct
	}
	if mi, err := proc.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		sample.RSSBytes = mi.RSS
		sample.VMSBytes = mi.VMS
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		sample.NumThreads = threads
	}
	if fds, err := proc.NumFDsWithContext(ctx); err == nil {
		sample.NumFDs = fds
	}
	if io, err := proc.IOCountersWithContext(ctx); err == nil && io != nil {
		sample.IOReadBytes = io.ReadBytes
		sample.IOWriteBytes = io.WriteBytes
	}

	return sample, nil
}

// Sink receives samples pushed by Start's periodic loop.
type Sink func(models.SystemSample)

// Start begins periodic whole-host sampling at interval, pushing each
// sample to sink, until Stop is called or ctx is cancelled.
func (p *Probe) Start(ctx context.Context, interval time.Duration, sink Sink) {
	p.stopCh = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				if sample, err := p.SampleSystem(ctx); err == nil {
					sink(sample)
				}
			}
		}
	}()
}

// Stop ends the periodic sampling loop started by Start.
func (p *Probe) Stop() {
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
}
