package models

// ManifestKind is the closed set of dependency-manifest kinds recognized
// by the Manifest Scanner.
type ManifestKind string

const (
	ManifestPipRequirements  ManifestKind = "pip-requirements"
	ManifestCondaEnvironment ManifestKind = "conda-environment"
	ManifestNodePackage      ManifestKind = "node-package"
	ManifestPythonSetup      ManifestKind = "python-setup"
	ManifestLockfile         ManifestKind = "lockfile" // pipenv/poetry
	ManifestContainerfile    ManifestKind = "containerfile"
	ManifestBuildSystem      ManifestKind = "build-system" // makefile/cmake
)

// DependencyItem is one package requirement parsed out of a manifest.
type DependencyItem struct {
	Name        string `json:"name"`
	VersionSpec string `json:"version_spec,omitempty"`
}

// ParsedManifest is the normalized content of one dependency file.
type ParsedManifest struct {
	Items          []DependencyItem `json:"items"`
	HasVersionPins bool             `json:"has_version_pins"`
	HasDevSection  bool             `json:"has_dev_section"`
	ParseError     string           `json:"parse_error,omitempty"`
}

// DependencyFile is produced by the Manifest Scanner and is immutable
// once produced.
type DependencyFile struct {
	Kind    ManifestKind   `json:"kind"`
	Path    string         `json:"path"`
	RawSize int64          `json:"raw_size"`
	Parsed  ParsedManifest `json:"parsed"`
}

// ScanResult is the full output of scanning one app directory.
type ScanResult struct {
	AppDir string           `json:"app_dir"`
	Files  []DependencyFile `json:"files"`
}

// InstallStepKind is the closed set of install-plan step kinds, in order.
type InstallStepKind string

const (
	StepClone          InstallStepKind = "clone"
	StepCreateEnv      InstallStepKind = "create-env"
	StepInstallDeps    InstallStepKind = "install-deps"
	StepPostInstallVerify InstallStepKind = "post-install-verify"
)

// InstallStep carries the inputs one step needs.
type InstallStep struct {
	Kind   InstallStepKind `json:"kind"`
	Detail string          `json:"detail,omitempty"`
}

// InstallPlan is the ordered sequence of steps the Installer drives.
type InstallPlan struct {
	AppID string        `json:"app_id"`
	Steps []InstallStep `json:"steps"`
}

// InstallStepResult records the outcome of one executed step.
type InstallStepResult struct {
	Kind       InstallStepKind `json:"kind"`
	OK         bool            `json:"ok"`
	ExitCode   int             `json:"exit_code"`
	StderrTail string          `json:"stderr_tail,omitempty"`
	Installed  int             `json:"installed,omitempty"` // for install-deps
}

// InstallReceipt is persisted alongside the AppRecord and records
// per-step progress so a repeated install after `error` can resume from
// the first unfinished step.
type InstallReceipt struct {
	AppID       string              `json:"app_id"`
	StepResults []InstallStepResult `json:"step_results"`
	Completed   bool                `json:"completed"`
}

// CompletedKinds returns the set of step kinds that succeeded.
func (r *InstallReceipt) CompletedKinds() map[InstallStepKind]bool {
	out := make(map[InstallStepKind]bool, len(r.StepResults))
	for _, sr := range r.StepResults {
		if sr.OK {
			out[sr.Kind] = true
		}
	}
	return out
}
