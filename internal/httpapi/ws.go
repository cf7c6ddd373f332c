package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/controlfreak/cfkd/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      checkWebSocketOrigin,
}

// checkWebSocketOrigin rejects everything but localhost, the same policy
// corsMiddleware applies to regular requests - websocket upgrades bypass
// CORS headers entirely so the check has to happen here instead.
func checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients (curl, cfk itself) send no Origin
	}
	return isLocalhostOrigin(origin)
}

// StreamLogsWS handles GET /api/v1/logs/ws: the same log tail as the SSE
// endpoint, framed as WebSocket text messages instead (spec §4.6).
func (h *Handlers) StreamLogsWS(w http.ResponseWriter, r *http.Request) {
	filter := domain.LogFilter{}
	if procs := r.URL.Query().Get("process"); procs != "" {
		filter.Processes = strings.Split(procs, ",")
	}
	filter.Pattern = r.URL.Query().Get("pattern")
	if r.URL.Query().Get("regex") == "true" {
		filter.IsRegex = true
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	subID, ch, err := h.logManager.Subscribe(filter)
	if err != nil {
		conn.WriteJSON(ErrorResponse{Error: err.Error(), Code: domain.ErrCodeInvalidPattern})
		return
	}
	defer h.logManager.Unsubscribe(subID)

	// Drain client reads so a control frame (e.g. close) unblocks the write
	// loop below; log tail is one-directional so the payload is discarded.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for entry := range ch {
		if err := conn.WriteJSON(toLogEntryResponse(entry)); err != nil {
			return
		}
	}
}
