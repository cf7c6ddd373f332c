package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/controlfreak/cfkd/internal/constants"
	"github.com/controlfreak/cfkd/internal/controller"
	"github.com/controlfreak/cfkd/internal/domain"
	"github.com/controlfreak/cfkd/internal/logs"
)

// Handlers implements the observability surface (spec §4.6): a JSON
// snapshot of controller state plus log query/tail, and the start/stop/
// restart and shutdown actions, separate from the admin endpoint's
// line-oriented protocol.
type Handlers struct {
	ctl        *controller.Controller
	logManager *logs.Manager
	log        zerolog.Logger
	shutdownFn func()
}

func NewHandlers(ctl *controller.Controller, shutdownFn func(), log zerolog.Logger) *Handlers {
	return &Handlers{ctl: ctl, logManager: ctl.Logs(), log: log, shutdownFn: shutdownFn}
}

// GetStatus handles GET /api/v1/status.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		ServiceCount: len(h.ctl.ServiceInfos()),
		ProxyCount:   len(h.ctl.ProxyInfos()),
		Home:         h.ctl.Home(),
		APIVersion:   "v1",
		Version:      controller.Version,
	})
}

// GetServices handles GET /api/v1/services.
func (h *Handlers) GetServices(w http.ResponseWriter, r *http.Request) {
	infos := h.ctl.ServiceInfos()
	resp := ServiceListResponse{Services: make([]ServiceResponse, len(infos))}
	for i, info := range infos {
		resp.Services[i] = toServiceResponse(info)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetService handles GET /api/v1/services/{name}.
func (h *Handlers) GetService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	info, err := h.ctl.ServiceInfo(name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	cfg, err := h.ctl.ServiceConfig(name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceDetailResponse(info, cfg))
}

// StartService handles POST /api/v1/services/{name}/start.
func (h *Handlers) StartService(w http.ResponseWriter, r *http.Request) {
	h.runSelector(w, r, h.ctl.Start)
}

// StopService handles POST /api/v1/services/{name}/stop.
func (h *Handlers) StopService(w http.ResponseWriter, r *http.Request) {
	h.runSelector(w, r, h.ctl.Stop)
}

// RestartService handles POST /api/v1/services/{name}/restart.
func (h *Handlers) RestartService(w http.ResponseWriter, r *http.Request) {
	h.runSelector(w, r, h.ctl.Restart)
}

func (h *Handlers) runSelector(w http.ResponseWriter, r *http.Request, fn func(domain.Selector) error) {
	name := chi.URLParam(r, "name")
	if err := fn(domain.Selector{Kind: domain.SelectorService, Value: name}); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// GetLogs handles GET /api/v1/logs.
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	filter, limit := parseLogParams(r)

	entries, total, err := h.logManager.QueryLast(filter, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := LogsResponse{
		Logs:          make([]LogEntryResponse, len(entries)),
		FilteredCount: len(entries),
		TotalCount:    total,
	}
	for i, e := range entries {
		resp.Logs[i] = toLogEntryResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Shutdown handles POST /api/v1/shutdown. The response is sent first since
// Shutdown tears down this very listener.
func (h *Handlers) Shutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
	go func() {
		time.Sleep(100 * time.Millisecond)
		if h.shutdownFn != nil {
			h.shutdownFn()
		}
	}()
}

func parseLogParams(r *http.Request) (domain.LogFilter, int) {
	filter := domain.LogFilter{}
	if procs := r.URL.Query().Get("process"); procs != "" {
		filter.Processes = strings.Split(procs, ",")
	}
	filter.Pattern = r.URL.Query().Get("pattern")
	if r.URL.Query().Get("regex") == "true" {
		filter.IsRegex = true
	}
	if level := r.URL.Query().Get("level"); level != "" {
		filter.MinKind = domain.LogKind(level)
	}

	limit := constants.DefaultLogLimit
	if s := r.URL.Query().Get("lines"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			if l > constants.MaxLogLines {
				l = constants.MaxLogLines
			}
			limit = l
		}
	}
	return filter, limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	switch {
	case errors.Is(err, domain.ErrServiceNotFound), errors.Is(err, domain.ErrProxyNotFound), errors.Is(err, domain.ErrSocketNotFound):
		status = http.StatusNotFound
		code = domain.ErrorCode(err)
		message = err.Error()
	case errors.Is(err, domain.ErrAlreadyUp):
		status = http.StatusConflict
		code = domain.ErrorCode(err)
		message = err.Error()
	case errors.Is(err, domain.ErrAlreadyDown), errors.Is(err, domain.ErrNotRunning):
		status = http.StatusConflict
		code = domain.ErrorCode(err)
		message = err.Error()
	case errors.Is(err, domain.ErrInvalidPattern):
		status = http.StatusBadRequest
		code = domain.ErrorCode(err)
		message = err.Error()
	case errors.Is(err, domain.ErrShutdownInProgress):
		status = http.StatusServiceUnavailable
		code = domain.ErrorCode(err)
		message = err.Error()
	default:
		h.log.Error().Err(err).Msg("internal error serving observability request")
	}

	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
