package handler

import (
	"log/slog"
	"net/http"
	"time"

	jwtinfra "github.com/ecotrack-api/internal/infrastructure/jwt"
	"github.com/ecotrack-api/internal/pkg/id"
	"github.com/ecotrack-api/internal/realtime"
	"github.com/gorilla/websocket"
)

// WSHandler upgrades authenticated clients into live presence sessions.
type WSHandler struct {
	hub      *realtime.Hub
	provider *jwtinfra.Provider
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(hub *realtime.Hub, provider *jwtinfra.Provider, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return &WSHandler{
		hub:      hub,
		provider: provider,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
		logger: logger,
	}
}

// Serve authenticates the handshake via the token query parameter (browser
// websocket clients cannot set an Authorization header), upgrades the
// connection and registers the session with the hub.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := h.provider.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Warn("websocket upgrade failed", "user_id", claims.UserID, "err", err)
		return
	}

	sess := realtime.Session{
		SessionID:   id.New(),
		UserID:      claims.UserID,
		Username:    claims.Username,
		Role:        claims.Role,
		ConnectedAt: time.Now().UTC(),
	}
	client := realtime.NewClient(h.hub, conn, sess.SessionID, h.logger)
	h.hub.Connect(sess, client)
	client.Start()
}
