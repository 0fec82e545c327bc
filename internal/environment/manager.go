// Package environment implements the Environment Manager (C6): creating
// and resolving per-app isolated or managed Python-style environments.
// The Manager provisions environments only; it never installs packages
// (that is the Installer's job, via C4 against the resolved
// interpreter/installer paths).
package environment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	skifferrors "github.com/skiffhost/skiffd/internal/errors"
	"github.com/skiffhost/skiffd/internal/models"
	"github.com/skiffhost/skiffd/internal/shell"
)

// Manager implements create()/exists()/resolve().
type Manager struct {
	executor      *shell.Executor
	managedRoot   string // shared root for managed-python named environments
}

func NewManager(executor *shell.Executor, managedRoot string) *Manager {
	return &Manager{executor: executor, managedRoot: managedRoot}
}

func binName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// Create provisions an environment of the requested kind at envPath (for
// isolated-python) or under the shared managed root (for managed-python,
// where envPath is treated as the environment's name). It returns the
// interpreter path.
func (m *Manager) Create(ctx context.Context, envPath string, kind models.EnvKind) (interpreter string, err error) {
	switch kind {
	case models.EnvIsolatedPython:
		if err := os.MkdirAll(envPath, 0o755); err != nil {
			return "", skifferrors.New(skifferrors.KindFilesystemPermission, "environment", envPath, err)
		}
		pythonBin, lookErr := pythonOnPath()
		if lookErr != nil {
			return "", skifferrors.New(skifferrors.KindConfiguration, "environment", "no python interpreter on PATH", lookErr)
		}
		result, runErr := m.executor.RunSync(ctx, shell.Spec{
			Cmd:     []string{pythonBin, "-m", "venv", envPath},
			Timeout: 120 * time.Second,
		})
		if runErr != nil {
			return "", skifferrors.New(skifferrors.KindSubprocessFailed, "environment", "venv create", runErr)
		}
		if result.Status != shell.StatusCompleted {
			return "", skifferrors.New(skifferrors.KindSubprocessFailed, "environment", "venv create failed", fmt.Errorf("%s", result.CapturedStderr)).WithStep("create-env")
		}
		return filepath.Join(envPath, "bin", binName("python")), nil

	case models.EnvManagedPython:
		named := filepath.Join(m.managedRoot, envPath)
		if err := os.MkdirAll(named, 0o755); err != nil {
			return "", skifferrors.New(skifferrors.KindFilesystemPermission, "environment", named, err)
		}
		pythonBin, lookErr := pythonOnPath()
		if lookErr != nil {
			return "", skifferrors.New(skifferrors.KindConfiguration, "environment", "no python interpreter on PATH", lookErr)
		}
		result, runErr := m.executor.RunSync(ctx, shell.Spec{
			Cmd:     []string{pythonBin, "-m", "venv", named},
			Timeout: 120 * time.Second,
		})
		if runErr != nil {
			return "", skifferrors.New(skifferrors.KindSubprocessFailed, "environment", "venv create", runErr)
		}
		if result.Status != shell.StatusCompleted {
			return "", skifferrors.New(skifferrors.KindSubprocessFailed, "environment", "venv create failed", fmt.Errorf("%s", result.CapturedStderr)).WithStep("create-env")
		}
		return filepath.Join(named, "bin", binName("python")), nil

	default:
		return "", skifferrors.New(skifferrors.KindConfiguration, "environment", fmt.Sprintf("unsupported env kind %q", kind), nil)
	}
}

// Exists reports whether envPath already holds a usable environment
// (interpreter present).
func (m *Manager) Exists(envPath string) bool {
	_, err := os.Stat(filepath.Join(envPath, "bin", binName("python")))
	return err == nil
}

// Resolve returns the interpreter and package-installer paths for an
// existing environment. When both an isolated-python directory and a
// managed-python named environment could apply, isolated-python wins
// (the tie-break rule named in §4.6); callers resolve isolated paths
// first and only fall back to managed ones, which this function leaves
// to the caller by taking an explicit kind rather than guessing.
func (m *Manager) Resolve(envPath string, kind models.EnvKind) (interpreterPath, installerPath string, err error) {
	var root string
	switch kind {
	case models.EnvIsolatedPython:
		root = envPath
	case models.EnvManagedPython:
		root = filepath.Join(m.managedRoot, envPath)
	default:
		return "", "", skifferrors.New(skifferrors.KindConfiguration, "environment", fmt.Sprintf("unsupported env kind %q", kind), nil)
	}

	interpreterPath = filepath.Join(root, "bin", binName("python"))
	installerPath = filepath.Join(root, "bin", binName("pip"))
	if _, err := os.Stat(interpreterPath); err != nil {
		return "", "", skifferrors.New(skifferrors.KindFilesystemPermission, "environment", interpreterPath, err)
	}
	return interpreterPath, installerPath, nil
}

func pythonOnPath() (string, error) {
	for _, candidate := range []string{"python3", "python"} {
		if p, err := exec.LookPath(candidate); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("neither python3 nor python found on PATH")
}
