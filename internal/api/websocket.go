// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Aren-Garro/ZeroERP/internal/logging"
	"github.com/Aren-Garro/ZeroERP/internal/realtime"
)

// WebSocket upgrades the request and hands the connection to the hub. The
// origin check honors the configured CORS origins; "*" admits any origin.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Warn().
			Err(err).
			Str("remote", sanitizeLogValue(r.RemoteAddr)).
			Msg("Websocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.hub, conn, h.timing)
	client.SetPeerInfo(r.RemoteAddr, r.UserAgent())
	h.hub.Register <- client
	client.Start()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
