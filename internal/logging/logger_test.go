package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToJSONHandler(t *testing.T) {
	logger := New("", "info")
	assert.NotNil(t, logger)
}

func TestNewAcceptsTextFormat(t *testing.T) {
	logger := New("text", "debug")
	assert.NotNil(t, logger)
}

func TestCommandLoggerRecordsSuccess(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCommandLogger(&buf)

	cl.Record("cmd-1", "start_app", "app-1", time.Now().Add(-50*time.Millisecond), nil)

	var entry CommandLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cmd-1", entry.CommandID)
	assert.Equal(t, "start_app", entry.Command)
	assert.Equal(t, "app-1", entry.AppID)
	assert.Equal(t, "ok", entry.Status)
	assert.Empty(t, entry.Error)
	assert.GreaterOrEqual(t, entry.DurationMs, int64(0))
}

func TestCommandLoggerRecordsFailure(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCommandLogger(&buf)

	cl.Record("cmd-2", "stop_app", "app-2", time.Now(), errors.New("boom"))

	var entry CommandLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry.Status)
	assert.Equal(t, "boom", entry.Error)
}
