// Package models defines the product types shared across components:
// the explicit entity shapes the design notes call for in place of the
// source's duck-typed records.
package models

// PlatformTag identifies a supported host cloud platform.
type PlatformTag string

const (
	PlatformColab      PlatformTag = "colab"
	PlatformKaggle     PlatformTag = "kaggle"
	PlatformPaperspace PlatformTag = "paperspace"
	PlatformRunPod     PlatformTag = "runpod"
	PlatformVastAI     PlatformTag = "vastai"
	PlatformLightning  PlatformTag = "lightning"
	PlatformUnknown    PlatformTag = "unknown"
)

// PathKind is a logical path category translated to a physical path by
// the Path Mapper.
type PathKind string

const (
	PathBase      PathKind = "base"
	PathApps      PathKind = "apps"
	PathData      PathKind = "data"
	PathTemp      PathKind = "temp"
	PathLogs      PathKind = "logs"
	PathCache     PathKind = "cache"
	PathModels    PathKind = "models"
	PathConfig    PathKind = "config"
	PathWorkspace PathKind = "workspace"
	PathDrive     PathKind = "drive"  // optional
	PathShared    PathKind = "shared" // optional
)

// Capabilities describes what the detected platform can do.
type Capabilities struct {
	HasPersistentMount bool
	HasNvidiaGPU       bool
	ContainerRuntime   string // e.g. "docker", "none"
}

// PlatformProfile is created once at startup and is immutable thereafter.
type PlatformProfile struct {
	Tag          PlatformTag
	Paths        map[PathKind]string
	Capabilities Capabilities
}

// Path returns the physical path for kind, and whether it is present in
// this profile (optional kinds such as drive/shared may be absent).
func (p *PlatformProfile) Path(kind PathKind) (string, bool) {
	v, ok := p.Paths[kind]
	return v, ok
}
