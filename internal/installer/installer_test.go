package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffhost/skiffd/internal/environment"
	"github.com/skiffhost/skiffd/internal/eventbus"
	"github.com/skiffhost/skiffd/internal/manifest"
	"github.com/skiffhost/skiffd/internal/models"
	"github.com/skiffhost/skiffd/internal/shell"
	"github.com/skiffhost/skiffd/internal/store"
)

func newTestInstaller(t *testing.T, strictness string) (*Installer, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "state"), 500)
	require.NoError(t, err)
	bus := eventbus.New("", 100)
	executor := shell.NewExecutor()
	envMgr := environment.NewManager(executor, filepath.Join(dir, "managed-envs"))
	scanner := manifest.NewScanner()
	inst := New(executor, scanner, envMgr, st, bus, filepath.Join(dir, "receipts"), strictness)
	return inst, st, dir
}

// fakeInterpreter writes an executable "python" stand-in at envDir/bin/python
// that exits non-zero for any "import <name>" line containing badImport.
func fakeInterpreter(t *testing.T, envDir, badImport string) string {
	t.Helper()
	binDir := filepath.Join(envDir, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	script := "#!/bin/sh\ncase \"$2\" in\n  *" + badImport + "*) exit 1 ;;\n  *) exit 0 ;;\nesac\n"
	path := filepath.Join(binDir, "python")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestSavedReceiptMarksCloneStepCompleted(t *testing.T) {
	inst, st, dir := newTestInstaller(t, "lenient")

	appID := "app-1"
	require.NoError(t, st.Put(&models.AppRecord{ID: appID, Status: models.StatusNotInstalled, CreatedAt: time.Now()}))

	installPath := filepath.Join(dir, "app-1-src")
	require.NoError(t, os.MkdirAll(installPath, 0o755))

	// Pre-seed a receipt marking clone as already done.
	receipt := &models.InstallReceipt{
		AppID: appID,
		StepResults: []models.InstallStepResult{
			{Kind: models.StepClone, OK: true},
		},
	}
	require.NoError(t, inst.saveReceipt(receipt))

	loaded := inst.loadReceipt(appID)
	assert.True(t, loaded.CompletedKinds()[models.StepClone])
}

func TestRunRecordsCloneFailureOnAppRecord(t *testing.T) {
	inst, st, dir := newTestInstaller(t, "lenient")

	appID := "app-2"
	require.NoError(t, st.Put(&models.AppRecord{ID: appID, Status: models.StatusNotInstalled, CreatedAt: time.Now()}))

	installPath := filepath.Join(dir, "app-2-src")
	require.NoError(t, os.MkdirAll(installPath, 0o755))

	// Clone will fail (no real git remote); the record must end in the
	// error state with the clone step named as the failing step.
	err := inst.Run(context.Background(), Request{
		AppID:       appID,
		SourceURL:   "https://example.invalid/not-a-real-repo.git",
		InstallPath: filepath.Join(dir, "clone-target"),
		EnvPath:     filepath.Join(dir, "env"),
		EnvKind:     models.EnvIsolatedPython,
	})
	assert.Error(t, err)

	rec, ok := st.Get(appID)
	require.True(t, ok)
	assert.Equal(t, models.StatusError, rec.Status)
	require.NotNil(t, rec.LastError)
	assert.Equal(t, string(models.StepClone), rec.LastError.Step)
}

func TestRunVerifySkipsImportTestForEnvNone(t *testing.T) {
	inst, _, dir := newTestInstaller(t, "strict")
	installPath := filepath.Join(dir, "app-src")
	require.NoError(t, os.MkdirAll(installPath, 0o755))

	result := inst.runVerify(context.Background(), Request{InstallPath: installPath, EnvKind: models.EnvNone})
	assert.True(t, result.OK)
}

func TestRunVerifyLenientRecordsUnimportableButSucceeds(t *testing.T) {
	inst, _, dir := newTestInstaller(t, "lenient")

	envPath := filepath.Join(dir, "env")
	fakeInterpreter(t, envPath, "badpkg")

	installPath := filepath.Join(dir, "app-src")
	require.NoError(t, os.MkdirAll(installPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(installPath, "requirements.txt"), []byte("goodpkg\nbadpkg\n"), 0o644))

	result := inst.runVerify(context.Background(), Request{InstallPath: installPath, EnvPath: envPath, EnvKind: models.EnvIsolatedPython})
	assert.True(t, result.OK)
	assert.Contains(t, result.StderrTail, "badpkg")
}

func TestRunVerifyStrictFailsOnUnimportablePackage(t *testing.T) {
	inst, _, dir := newTestInstaller(t, "strict")

	envPath := filepath.Join(dir, "env")
	fakeInterpreter(t, envPath, "badpkg")

	installPath := filepath.Join(dir, "app-src")
	require.NoError(t, os.MkdirAll(installPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(installPath, "requirements.txt"), []byte("goodpkg\nbadpkg\n"), 0o644))

	result := inst.runVerify(context.Background(), Request{InstallPath: installPath, EnvPath: envPath, EnvKind: models.EnvIsolatedPython})
	assert.False(t, result.OK)
	assert.Contains(t, result.StderrTail, "badpkg")
}

func TestRunVerifyStrictPassesWhenAllPackagesImport(t *testing.T) {
	inst, _, dir := newTestInstaller(t, "strict")

	envPath := filepath.Join(dir, "env")
	fakeInterpreter(t, envPath, "nonexistent-marker")

	installPath := filepath.Join(dir, "app-src")
	require.NoError(t, os.MkdirAll(installPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(installPath, "requirements.txt"), []byte("goodpkg\n"), 0o644))

	result := inst.runVerify(context.Background(), Request{InstallPath: installPath, EnvPath: envPath, EnvKind: models.EnvIsolatedPython})
	assert.True(t, result.OK)
	assert.Empty(t, result.StderrTail)
}
