package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesEntries(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, `{"stable-diffusion-webui": {"name": "Stable Diffusion WebUI", "category": "image"}}`)

	cat := New(path)
	changed, err := cat.Load()
	require.NoError(t, err)
	assert.True(t, changed)

	entry, ok := cat.Get("stable-diffusion-webui")
	require.True(t, ok)
	assert.Equal(t, "Stable Diffusion WebUI", entry.Name)
	assert.Equal(t, "stable-diffusion-webui", entry.ID)
}

func TestReloadWithUnchangedFileProducesNoChange(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, `{"a": {"name": "A"}}`)

	cat := New(path)
	changed, err := cat.Load()
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = cat.Load()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestReloadWithModifiedFileReportsChange(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, `{"a": {"name": "A"}}`)

	cat := New(path)
	_, err := cat.Load()
	require.NoError(t, err)

	writeCatalog(t, dir, `{"a": {"name": "A"}, "b": {"name": "B"}}`)
	changed, err := cat.Load()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, cat.List(), 2)
}
