package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/skiffhost/skiffd/internal/orchestrator"
	"github.com/skiffhost/skiffd/internal/shell"
)

// consoleMessage is the client->server control protocol: either a raw
// keystroke ("input") or a terminal resize.
type consoleMessage struct {
	Type string `json:"type"` // "input" or "resize"
	Data string `json:"data,omitempty"`
	Rows int    `json:"rows,omitempty"`
	Cols int    `json:"cols,omitempty"`
}

var consoleUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ConsoleHandler attaches a PTY-backed shell into an app's environment so
// a dashboard can open a live console, grounded on the teacher's
// PTY-over-websocket shell stream and narrowed to one shell per app
// rather than per-cluster.
type ConsoleHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

func NewConsoleHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *ConsoleHandler {
	return &ConsoleHandler{orch: orch, logger: logger}
}

// ServeConsole upgrades the connection and attaches a PTY running the
// app's interpreter shell in its install directory.
func (h *ConsoleHandler) ServeConsole(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	rec, ok := h.orch.Store.Get(appID)
	if !ok {
		http.Error(w, `{"error":"unknown app"}`, http.StatusNotFound)
		return
	}

	conn, err := consoleUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("console upgrade failed", "error", err, "app_id", appID)
		return
	}
	defer conn.Close()

	session, err := shell.StartInteractive(r.Context(), shell.Spec{
		Cmd: []string{"/bin/sh", "-i"},
		Cwd: rec.InstallPath,
	})
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"type": "error", "data": err.Error()})
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := session.Read(buf)
			if n > 0 {
				if writeErr := conn.WriteMessage(websocket.TextMessage, buf[:n]); writeErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg consoleMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "input":
			_, _ = session.Write([]byte(msg.Data))
		case "resize":
			_ = session.Resize(msg.Rows, msg.Cols)
		}
	}
	session.Close()
	<-done
}
