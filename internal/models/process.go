package models

import "time"

// ProcessRole distinguishes the supervised process's place in its group.
type ProcessRole string

const (
	RoleMain   ProcessRole = "main"
	RoleDaemon ProcessRole = "daemon"
	RoleChild  ProcessRole = "child"
	RoleHelper ProcessRole = "helper"
)

// ResourceSample is a value-typed point-in-time measurement of one
// process. The probe does not retain history; the Supervisor rings it.
type ResourceSample struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	RSSBytes      uint64    `json:"rss_bytes"`
	VMSBytes      uint64    `json:"vms_bytes"`
	NumThreads    int32     `json:"num_threads"`
	NumFDs        int32     `json:"num_fds"`
	IOReadBytes   uint64    `json:"io_read_bytes"`
	IOWriteBytes  uint64    `json:"io_write_bytes"`
	GPUMemBytes   *uint64   `json:"gpu_mem_bytes,omitempty"`
	GPUUtilPercent *float64 `json:"gpu_util_percent,omitempty"`
}

// SystemSample is one whole-host measurement.
type SystemSample struct {
	Timestamp      time.Time `json:"timestamp"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemUsedBytes   uint64    `json:"mem_used_bytes"`
	MemTotalBytes  uint64    `json:"mem_total_bytes"`
	DiskUsedBytes  uint64    `json:"disk_used_bytes"`
	DiskTotalBytes uint64    `json:"disk_total_bytes"`
	NetRecvBytes   uint64    `json:"net_recv_bytes"`
	NetSentBytes   uint64    `json:"net_sent_bytes"`
	GPU            *GPUSample `json:"gpu,omitempty"`
}

// GPUSample mirrors the fields the nvidia-smi fallback probe can fill.
type GPUSample struct {
	Name          string  `json:"name"`
	MemTotalMB    float64 `json:"mem_total_mb"`
	MemFreeMB     float64 `json:"mem_free_mb"`
	UtilPercent   float64 `json:"util_percent"`
	DriverVersion string  `json:"driver_version"`
}

// ResourceRing is a bounded, wall-clock-retained ring buffer of samples.
type ResourceRing struct {
	Capacity  int
	Retention time.Duration
	samples   []ResourceSample
}

func NewResourceRing(capacity int, retention time.Duration) *ResourceRing {
	if capacity <= 0 {
		capacity = 100
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &ResourceRing{Capacity: capacity, Retention: retention}
}

// Add appends a sample, evicting by capacity and by wall-clock retention.
func (r *ResourceRing) Add(s ResourceSample) {
	r.samples = append(r.samples, s)
	if len(r.samples) > r.Capacity {
		r.samples = r.samples[len(r.samples)-r.Capacity:]
	}
	cutoff := s.Timestamp.Add(-r.Retention)
	i := 0
	for ; i < len(r.samples); i++ {
		if r.samples[i].Timestamp.After(cutoff) {
			break
		}
	}
	if i > 0 {
		r.samples = r.samples[i:]
	}
}

// Snapshot returns a copy of the currently retained samples.
func (r *ResourceRing) Snapshot() []ResourceSample {
	out := make([]ResourceSample, len(r.samples))
	copy(out, r.samples)
	return out
}

// ProcessHandle is owned exclusively by the Supervisor.
type ProcessHandle struct {
	PID            int         `json:"pid"`
	ProcessGroupID int         `json:"process_group_id"`
	AppID          string      `json:"app_id"`
	Role           ProcessRole `json:"role"`

	Command    []string          `json:"command"`
	WorkingDir string            `json:"working_dir"`
	EnvSnapshot map[string]string `json:"env_snapshot"`

	Resources *ResourceRing `json:"-"`

	LastProbeAt time.Time `json:"last_probe_at"`
	LastStatus  string    `json:"last_status"` // "running", "exited", "unknown"
}
