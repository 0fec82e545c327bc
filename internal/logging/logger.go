// Package logging wires a *slog.Logger per the configured level/format,
// plus a JSON-lines command logger that records one line per command it
// is given. The REST command surface does not call the command logger.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"
)

// New builds a *slog.Logger using a JSON or text handler depending on
// format ("json" default, "text" otherwise), at the given level.
func New(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// CommandLogEntry is one line of the command-surface audit log.
type CommandLogEntry struct {
	Time       string `json:"time"`
	CommandID  string `json:"command_id"`
	Command    string `json:"command"`
	AppID      string `json:"app_id,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// CommandLogger writes one JSON line per invoked command, independent of
// the general structured logger, so the dashboard can tail a
// machine-parseable audit trail.
type CommandLogger struct {
	enc *json.Encoder
}

func NewCommandLogger(out io.Writer) *CommandLogger {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return &CommandLogger{enc: enc}
}

func (l *CommandLogger) Record(commandID, command, appID string, start time.Time, err error) {
	entry := CommandLogEntry{
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		CommandID:  commandID,
		Command:    command,
		AppID:      appID,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "ok",
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	_ = l.enc.Encode(entry)
}
