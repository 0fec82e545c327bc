package websocket

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/skiffhost/skiffd/internal/config"
	"github.com/skiffhost/skiffd/internal/eventbus"
)

// Handler upgrades HTTP connections into event-stream subscribers.
// Grounded on the teacher's ServeWS (origin-checked upgrader, optional
// bearer auth before upgrading, client goroutine pair), narrowed from
// its API-key-or-JWT dual path down to JWT-only since this server has no
// user table to look an API key up against.
type Handler struct {
	hub      *Hub
	bus      *eventbus.Bus
	cfg      *config.Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, bus *eventbus.Bus, cfg *config.Config, logger *slog.Logger) *Handler {
	originMap := make(map[string]bool, len(cfg.API.AllowedOrigins))
	for _, o := range cfg.API.AllowedOrigins {
		originMap[strings.ToLower(o)] = true
	}

	return &Handler{
		hub:    hub,
		bus:    bus,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(originMap) == 0 {
					return true
				}
				return originMap[strings.ToLower(origin)]
			},
		},
	}
}

// ServeWS upgrades the connection, validates a bearer token when auth is
// enabled, then registers a Client that streams every subsequent bus
// event until the connection closes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.cfg.API.AuthSecret != "" {
		if err := h.checkToken(r); err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, `{"error":"invalid or missing token"}`, http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := h.bus.Subscribe(nil)
	clientID := uuid.NewString()
	client := newClient(h.hub, conn, clientID, sub)
	h.hub.register(client)

	if replay, err := marshalReplay(h.bus.Recent(50)); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, replay)
	}

	go client.WritePump(h.logger)
	go client.ReadPump()

	h.logger.Info("websocket client connected", "client_id", clientID)
}

func (h *Handler) checkToken(r *http.Request) error {
	token := r.Header.Get("Authorization")
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return http.ErrNoCookie
	}
	_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(h.cfg.API.AuthSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err
}
