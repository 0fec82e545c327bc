package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffhost/skiffd/internal/models"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestScanFindsAndParsesPipRequirements(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "# comment\nnumpy==1.26.0\ntorch>=2.0\nflask\n")

	result, err := NewScanner().Scan(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, result.Files, 1)
	f := result.Files[0]
	assert.Equal(t, models.ManifestPipRequirements, f.Kind)
	assert.True(t, f.Parsed.HasVersionPins)
	assert.Len(t, f.Parsed.Items, 3)
}

func TestScanIgnoresVendoredDirectories(t *testing.T) {
	dir := t.TempDir()
	nodeModules := filepath.Join(dir, "node_modules")
	require.NoError(t, os.MkdirAll(nodeModules, 0o755))
	writeFile(t, nodeModules, "package.json", `{"name":"dep"}`)
	writeFile(t, dir, "package.json", `{"name":"app"}`)

	result, err := NewScanner().Scan(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, result.Files, 1)
	assert.Equal(t, filepath.Join(dir, "package.json"), result.Files[0].Path)
}

func TestScanClassifiesMultipleManifestKinds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "requests\n")
	writeFile(t, dir, "Dockerfile", "FROM python:3.11\n")
	writeFile(t, dir, "package.json", `{"dependencies":{"react":"^18.0.0"}}`)

	result, err := NewScanner().Scan(context.Background(), dir)
	require.NoError(t, err)

	kinds := map[models.ManifestKind]bool{}
	for _, f := range result.Files {
		kinds[f.Kind] = true
	}
	assert.True(t, kinds[models.ManifestPipRequirements])
	assert.True(t, kinds[models.ManifestContainerfile])
	assert.True(t, kinds[models.ManifestNodePackage])
}

func TestScanRecordsUnreadableFileWithoutFailingWholeScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements.txt")
	writeFile(t, dir, "requirements.txt", "numpy\n")
	require.NoError(t, os.Chmod(path, 0o000))
	t.Cleanup(func() { os.Chmod(path, 0o644) })

	result, err := NewScanner().Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
}
