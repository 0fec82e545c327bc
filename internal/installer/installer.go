// Package installer implements the Installer (C7): driving an app
// through clone, environment creation, dependency installation, and
// post-install verification, persisting a step-level receipt so a
// repeated install after an error resumes from the first unfinished
// step rather than redoing completed work. Grounded on the project's
// multi-step reconciliation style (each step idempotency-checked before
// being re-run) and wired to the Shell Executor, Manifest Scanner,
// Environment Manager, and State Store.
package installer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	skifferrors "github.com/skiffhost/skiffd/internal/errors"
	"github.com/skiffhost/skiffd/internal/environment"
	"github.com/skiffhost/skiffd/internal/eventbus"
	"github.com/skiffhost/skiffd/internal/manifest"
	"github.com/skiffhost/skiffd/internal/metrics"
	"github.com/skiffhost/skiffd/internal/models"
	"github.com/skiffhost/skiffd/internal/retry"
	"github.com/skiffhost/skiffd/internal/shell"
	"github.com/skiffhost/skiffd/internal/store"
)

// Installer drives one app through its install plan.
type Installer struct {
	executor    *shell.Executor
	scanner     *manifest.Scanner
	envMgr      *environment.Manager
	store       *store.Store
	bus         *eventbus.Bus
	receiptsDir string
	strictness  string // "strict" or "lenient"
}

// New constructs an Installer. strictness governs the Verify step: under
// "strict" an unimportable top-level package fails the step, under
// "lenient" it is recorded but does not fail the install.
func New(executor *shell.Executor, scanner *manifest.Scanner, envMgr *environment.Manager, st *store.Store, bus *eventbus.Bus, receiptsDir, strictness string) *Installer {
	return &Installer{executor: executor, scanner: scanner, envMgr: envMgr, store: st, bus: bus, receiptsDir: receiptsDir, strictness: strictness}
}

// Request carries everything one install needs.
type Request struct {
	AppID       string
	SourceURL   string
	InstallPath string
	EnvPath     string
	EnvKind     models.EnvKind
}

func (i *Installer) receiptPath(appID string) string {
	return filepath.Join(i.receiptsDir, appID+".json")
}

func (i *Installer) loadReceipt(appID string) *models.InstallReceipt {
	raw, err := os.ReadFile(i.receiptPath(appID))
	if err != nil {
		return &models.InstallReceipt{AppID: appID}
	}
	var r models.InstallReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return &models.InstallReceipt{AppID: appID}
	}
	return &r
}

func (i *Installer) saveReceipt(r *models.InstallReceipt) error {
	if err := os.MkdirAll(i.receiptsDir, 0o755); err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "installer", i.receiptsDir, err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return skifferrors.New(skifferrors.KindSchemaParse, "installer", "marshal receipt", err)
	}
	tmp := i.receiptPath(r.AppID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "installer", tmp, err)
	}
	return os.Rename(tmp, i.receiptPath(r.AppID))
}

// Run executes req's install plan, recording intent in the State Store
// before starting, skipping any step the receipt already marks OK
// (resumable-after-error), and finalizing the AppRecord to installed or
// error.
func (i *Installer) Run(ctx context.Context, req Request) error {
	if _, err := i.store.Update(req.AppID, func(a *models.AppRecord) error {
		a.Status = models.StatusInstalling
		a.InstallPath = req.InstallPath
		a.EnvPath = req.EnvPath
		a.EnvKind = req.EnvKind
		return nil
	}); err != nil {
		return err
	}

	receipt := i.loadReceipt(req.AppID)
	completed := receipt.CompletedKinds()

	steps := []models.InstallStepKind{
		models.StepClone,
		models.StepCreateEnv,
		models.StepInstallDeps,
		models.StepPostInstallVerify,
	}

	for _, kind := range steps {
		if completed[kind] {
			continue
		}
		start := time.Now()
		result := i.runStep(ctx, kind, req)
		metrics.InstallDurationSeconds.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

		receipt.StepResults = append(receipt.StepResults, result)
		if err := i.saveReceipt(receipt); err != nil {
			return err
		}

		i.bus.Publish(models.EventInstallProgress, "installer", models.InstallProgressPayload{
			AppID: req.AppID, Step: kind, OK: result.OK, Installed: result.Installed,
			Error: result.StderrTail,
		})

		if !result.OK {
			_, _ = i.store.Update(req.AppID, func(a *models.AppRecord) error {
				a.Status = models.StatusError
				a.LastError = &models.AppError{
					Step: string(kind), ExitCode: result.ExitCode,
					StderrTail: result.StderrTail, Reason: "subprocess-failed",
				}
				return nil
			})
			return skifferrors.New(skifferrors.KindSubprocessFailed, "installer", string(kind), fmt.Errorf("%s", result.StderrTail)).WithStep(string(kind))
		}
	}

	receipt.Completed = true
	if err := i.saveReceipt(receipt); err != nil {
		return err
	}

	_, err := i.store.Update(req.AppID, func(a *models.AppRecord) error {
		a.Status = models.StatusInstalled
		a.LastError = nil
		return nil
	})
	return err
}

func (i *Installer) runStep(ctx context.Context, kind models.InstallStepKind, req Request) models.InstallStepResult {
	switch kind {
	case models.StepClone:
		return i.runClone(ctx, req)
	case models.StepCreateEnv:
		return i.runCreateEnv(ctx, req)
	case models.StepInstallDeps:
		return i.runInstallDeps(ctx, req)
	case models.StepPostInstallVerify:
		return i.runVerify(ctx, req)
	default:
		return models.InstallStepResult{Kind: kind, OK: false, StderrTail: "unknown step"}
	}
}

func (i *Installer) runClone(ctx context.Context, req Request) models.InstallStepResult {
	if _, err := os.Stat(req.InstallPath); err == nil {
		return models.InstallStepResult{Kind: models.StepClone, OK: true} // already cloned: idempotent
	}
	result, err := i.executor.RunSync(ctx, shell.Spec{
		Cmd:     []string{"git", "clone", "--depth", "1", req.SourceURL, req.InstallPath},
		Timeout: 5 * time.Minute,
	})
	return toStepResult(models.StepClone, result, err)
}

func (i *Installer) runCreateEnv(ctx context.Context, req Request) models.InstallStepResult {
	if i.envMgr.Exists(req.EnvPath) {
		return models.InstallStepResult{Kind: models.StepCreateEnv, OK: true}
	}
	_, err := i.envMgr.Create(ctx, req.EnvPath, req.EnvKind)
	if err != nil {
		return models.InstallStepResult{Kind: models.StepCreateEnv, OK: false, ExitCode: -1, StderrTail: err.Error()}
	}
	return models.InstallStepResult{Kind: models.StepCreateEnv, OK: true}
}

// runInstallDeps scans the app directory for dependency manifests and
// installs each pip-requirements manifest found, via the environment's
// resolved installer; manifests of every other kind (node-package,
// conda, and the rest) are skipped and not installed. Retries transient
// network failures per the shared backoff policy.
func (i *Installer) runInstallDeps(ctx context.Context, req Request) models.InstallStepResult {
	scanResult, err := i.scanner.Scan(ctx, req.InstallPath)
	if err != nil {
		return models.InstallStepResult{Kind: models.StepInstallDeps, OK: false, StderrTail: err.Error()}
	}

	_, installerPath, err := i.envMgr.Resolve(req.EnvPath, req.EnvKind)
	if err != nil {
		return models.InstallStepResult{Kind: models.StepInstallDeps, OK: false, StderrTail: err.Error()}
	}

	installed := 0
	for _, f := range scanResult.Files {
		if f.Kind != models.ManifestPipRequirements || f.Parsed.ParseError != "" {
			continue
		}
		stderrTail, err := i.installPipFile(ctx, installerPath, f.Path)
		if err != nil {
			return models.InstallStepResult{Kind: models.StepInstallDeps, OK: false, StderrTail: stderrTail}
		}
		installed += len(f.Parsed.Items)
	}
	return models.InstallStepResult{Kind: models.StepInstallDeps, OK: true, Installed: installed}
}

func (i *Installer) installPipFile(ctx context.Context, pipPath, requirementsPath string) (string, error) {
	var stderrTail string
	err := retry.Do(ctx, retry.Policy{Initial: 2 * time.Second, Multiplier: 2, Max: 20 * time.Second, MaxAttempts: 3}, isTransientShellError, func(ctx context.Context) error {
		result, runErr := i.executor.RunSync(ctx, shell.Spec{
			Cmd:     []string{pipPath, "install", "-r", requirementsPath},
			Timeout: 10 * time.Minute,
		})
		if runErr != nil {
			return skifferrors.New(skifferrors.KindSubprocessFailed, "installer", "pip install", runErr)
		}
		stderrTail = tail(result.CapturedStderr, 2048)
		if result.Status != shell.StatusCompleted {
			return skifferrors.New(skifferrors.KindNetworkTransient, "installer", "pip install failed", fmt.Errorf("%s", stderrTail))
		}
		return nil
	})
	return stderrTail, err
}

func isTransientShellError(err error) bool {
	kind, ok := skifferrors.KindOf(err)
	if !ok {
		return false
	}
	return kind == skifferrors.KindNetworkTransient || kind == skifferrors.KindTimeout
}

// runVerify confirms the installed interpreter is usable and, for Python
// environments, import-tests every top-level package name drawn from the
// scanned manifests. Under install.strictness "strict" an unimportable
// entry fails the step; under "lenient" it is recorded in StderrTail but
// does not fail the install.
func (i *Installer) runVerify(ctx context.Context, req Request) models.InstallStepResult {
	if req.EnvKind == models.EnvNone {
		return models.InstallStepResult{Kind: models.StepPostInstallVerify, OK: true}
	}

	interpreterPath, _, err := i.envMgr.Resolve(req.EnvPath, req.EnvKind)
	if err != nil {
		return models.InstallStepResult{Kind: models.StepPostInstallVerify, OK: false, StderrTail: err.Error()}
	}
	if _, err := os.Stat(interpreterPath); err != nil {
		return models.InstallStepResult{Kind: models.StepPostInstallVerify, OK: false, StderrTail: "interpreter missing after install"}
	}

	names, err := i.topLevelPackageNames(ctx, req.InstallPath)
	if err != nil {
		return models.InstallStepResult{Kind: models.StepPostInstallVerify, OK: false, StderrTail: err.Error()}
	}

	var unimportable []string
	for _, name := range names {
		result, err := i.executor.RunSync(ctx, shell.Spec{
			Cmd:     []string{interpreterPath, "-c", fmt.Sprintf("import %s", name)},
			Timeout: 30 * time.Second,
		})
		if err != nil || result.Status != shell.StatusCompleted {
			unimportable = append(unimportable, name)
		}
	}

	if len(unimportable) == 0 {
		return models.InstallStepResult{Kind: models.StepPostInstallVerify, OK: true}
	}

	tailMsg := fmt.Sprintf("unimportable packages: %s", strings.Join(unimportable, ", "))
	if i.strictness == "strict" {
		return models.InstallStepResult{Kind: models.StepPostInstallVerify, OK: false, StderrTail: tailMsg}
	}
	return models.InstallStepResult{Kind: models.StepPostInstallVerify, OK: true, StderrTail: tailMsg}
}

// topLevelPackageNames scans req's directory for pip-requirements
// manifests and returns the deduplicated set of declared package names.
func (i *Installer) topLevelPackageNames(ctx context.Context, installPath string) ([]string, error) {
	scanResult, err := i.scanner.Scan(ctx, installPath)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, f := range scanResult.Files {
		if f.Kind != models.ManifestPipRequirements || f.Parsed.ParseError != "" {
			continue
		}
		for _, item := range f.Parsed.Items {
			if item.Name == "" || seen[item.Name] {
				continue
			}
			seen[item.Name] = true
			names = append(names, item.Name)
		}
	}
	return names, nil
}

func toStepResult(kind models.InstallStepKind, result shell.CommandResult, err error) models.InstallStepResult {
	if err != nil {
		return models.InstallStepResult{Kind: kind, OK: false, ExitCode: -1, StderrTail: err.Error()}
	}
	if result.Status != shell.StatusCompleted {
		return models.InstallStepResult{Kind: kind, OK: false, ExitCode: result.ExitCode, StderrTail: tail(result.CapturedStderr, 2048)}
	}
	return models.InstallStepResult{Kind: kind, OK: true, ExitCode: result.ExitCode}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
