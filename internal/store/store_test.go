package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffhost/skiffd/internal/models"
)

func TestPutAndGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	app := &models.AppRecord{ID: "app-1", Name: "demo", Status: models.StatusInstalled}
	require.NoError(t, s.Put(app))

	got, ok := s.Get("app-1")
	require.True(t, ok)
	assert.Equal(t, "demo", got.Name)
	assert.Equal(t, models.StatusInstalled, got.Status)
}

func TestGetMissingReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.Get("nonexistent")
	assert.False(t, ok)
}

func TestUpdateAppliesMutation(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(&models.AppRecord{ID: "app-1", Status: models.StatusInstalled}))

	updated, err := s.Update("app-1", func(rec *models.AppRecord) error {
		rec.Status = models.StatusRunning
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, updated.Status)

	got, _ := s.Get("app-1")
	assert.Equal(t, models.StatusRunning, got.Status)
}

func TestUpdateUnknownIDErrors(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Update("missing", func(rec *models.AppRecord) error { return nil })
	assert.Error(t, err)
}

func TestDeleteRemovesRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(&models.AppRecord{ID: "app-1"}))
	require.NoError(t, s.Delete("app-1"))

	_, ok := s.Get("app-1")
	assert.False(t, ok)
}

func TestListReturnsAllRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(&models.AppRecord{ID: "app-1"}))
	require.NoError(t, s.Put(&models.AppRecord{ID: "app-2"}))

	list := s.List()
	assert.Len(t, list, 2)
}

func TestRecoverReplaysLogAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)

	require.NoError(t, s.Put(&models.AppRecord{ID: "app-1", Name: "demo"}))
	require.NoError(t, s.Put(&models.AppRecord{ID: "app-2", Name: "other"}))
	require.NoError(t, s.Delete("app-2"))
	require.NoError(t, s.Close())

	reopened, err := Open(dir, 0)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.Get("app-1")
	require.True(t, ok)
	assert.Equal(t, "demo", got.Name)

	_, ok = reopened.Get("app-2")
	assert.False(t, ok)
}

func TestSnapshotTruncatesLogAndSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 2)
	require.NoError(t, err)

	require.NoError(t, s.Put(&models.AppRecord{ID: "app-1"}))
	require.NoError(t, s.Put(&models.AppRecord{ID: "app-2"}))
	require.NoError(t, s.Close())

	reopened, err := Open(dir, 2)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Len(t, reopened.List(), 2)
}

func TestClonedRecordsAreIndependentOfStoreState(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(&models.AppRecord{ID: "app-1", Name: "original"}))

	got, _ := s.Get("app-1")
	got.Name = "mutated"

	again, _ := s.Get("app-1")
	assert.Equal(t, "original", again.Name)
}
