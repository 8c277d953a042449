package handlers

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/pocketbase/pocketbase/core"

	"github.com/damione1/collab-notes/internal/config"
	"github.com/damione1/collab-notes/internal/security"
	"github.com/damione1/collab-notes/internal/services"
)

type WSHandler struct {
	channel *services.SyncChannel
	origins *security.OriginValidator
	log     *slog.Logger
}

func NewWSHandler(channel *services.SyncChannel, origins *security.OriginValidator, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		channel: channel,
		origins: origins,
		log:     log,
	}
}

// HandleWebSocket handles GET /ws
func (h *WSHandler) HandleWebSocket(re *core.RequestEvent) error {
	h.ServeHTTP(re.Response, re.Request)
	return nil
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// Rooms are chosen by join frames, not by the URL.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.origins.GetAcceptOptions())
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		h.channel.Metrics().IncrementConnectionErrors()
		return
	}
	conn.SetReadLimit(config.MaxMessageSize)

	client := services.NewClient(conn, h.channel, h.log)
	h.log.Debug("websocket connected", "conn", client.ID(), "remote", r.RemoteAddr)

	client.Run(r.Context())
}
