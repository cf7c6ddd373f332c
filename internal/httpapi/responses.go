package httpapi

import (
	"strings"
	"time"

	"github.com/controlfreak/cfkd/internal/domain"
)

// sensitiveEnvPatterns flags environment variable names redacted from the
// service-detail response.
var sensitiveEnvPatterns = []string{
	"PASSWORD", "SECRET", "KEY", "TOKEN", "CREDENTIAL", "PRIVATE",
	"AUTH", "API_KEY", "APIKEY", "ACCESS_KEY", "ACCESSKEY",
}

// StatusResponse is the payload for GET /api/v1/status.
type StatusResponse struct {
	ServiceCount int    `json:"service_count"`
	ProxyCount   int    `json:"proxy_count"`
	Home         string `json:"home"`
	APIVersion   string `json:"api_version"`
	Version      string `json:"version"`
}

// ServiceResponse is one entry in GET /api/v1/services.
type ServiceResponse struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	PID           int    `json:"pid"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	BackoffRetry  int    `json:"backoff_retry"`
	Proxy         string `json:"proxy,omitempty"`
	FailReason    string `json:"fail_reason,omitempty"`
}

// ServiceListResponse is the payload for GET /api/v1/services.
type ServiceListResponse struct {
	Services []ServiceResponse `json:"services"`
}

// ServiceDetailResponse is the payload for GET /api/v1/services/{name}.
type ServiceDetailResponse struct {
	ServiceResponse
	Desc       string            `json:"desc,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Cmd        string            `json:"cmd"`
	Env        map[string]string `json:"env,omitempty"`
	RunningCmd string            `json:"running_cmd,omitempty"`
	StartTime  string            `json:"start_time,omitempty"`
	StopTime   string            `json:"stop_time,omitempty"`
}

// LogsResponse is the payload for GET /api/v1/logs.
type LogsResponse struct {
	Logs          []LogEntryResponse `json:"logs"`
	FilteredCount int                `json:"filtered_count"`
	TotalCount    int                `json:"total_count"`
}

// LogEntryResponse is one log line.
type LogEntryResponse struct {
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	Process   string `json:"process"`
	Stream    string `json:"stream"`
	Line      string `json:"line"`
}

// SuccessResponse is a simple operation-succeeded payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func toServiceResponse(info domain.ServiceInfo) ServiceResponse {
	return ServiceResponse{
		Name:          info.Name,
		State:         string(info.State),
		PID:           info.PID,
		UptimeSeconds: info.UptimeSeconds(),
		BackoffRetry:  info.BackoffRetry,
		Proxy:         info.ProxyAsText(),
		FailReason:    info.FailReason,
	}
}

func toServiceDetailResponse(info domain.ServiceInfo, cfg domain.ServiceConfig) ServiceDetailResponse {
	resp := ServiceDetailResponse{
		ServiceResponse: toServiceResponse(info),
		Desc:            info.Desc,
		Tags:            info.Tags,
		Cmd:             cfg.Cmd.String(),
		Env:             filterSensitiveEnv(cfg.Env),
		RunningCmd:      info.RunningCmd,
	}
	if !info.StartTime.IsZero() {
		resp.StartTime = info.StartTime.Format(time.RFC3339)
	}
	if !info.StopTime.IsZero() {
		resp.StopTime = info.StopTime.Format(time.RFC3339)
	}
	return resp
}

func filterSensitiveEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if isSensitiveEnvVar(k) {
			out[k] = "[REDACTED]"
		} else {
			out[k] = v
		}
	}
	return out
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, p := range sensitiveEnvPatterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}

func toLogEntryResponse(e domain.LogEntry) LogEntryResponse {
	return LogEntryResponse{
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Kind:      string(e.Kind),
		Process:   e.Process,
		Stream:    string(e.Stream),
		Line:      e.Line,
	}
}
