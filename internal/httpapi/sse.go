package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/controlfreak/cfkd/internal/domain"
)

// StreamLogs handles GET /api/v1/logs/stream (SSE tail, spec §4.6).
func (h *Handlers) StreamLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	filter := domain.LogFilter{}
	if procs := r.URL.Query().Get("process"); procs != "" {
		filter.Processes = strings.Split(procs, ",")
	}
	filter.Pattern = r.URL.Query().Get("pattern")
	if r.URL.Query().Get("regex") == "true" {
		filter.IsRegex = true
	}

	subID, ch, err := h.logManager.Subscribe(filter)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: domain.ErrCodeInvalidPattern})
		return
	}
	defer h.logManager.Unsubscribe(subID)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(toLogEntryResponse(entry))
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				h.log.Debug().Err(err).Msg("sse client disconnected")
				return
			}
			flusher.Flush()
		}
	}
}
