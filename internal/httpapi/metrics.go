package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/controlfreak/cfkd/internal/domain"
)

var (
	servicesByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cfk_services_by_state",
			Help: "Number of supervised services currently in each state.",
		},
		[]string{"state"},
	)

	serviceBackoffRetries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cfk_service_backoff_retry_count",
			Help: "Current backoff retry count for each service.",
		},
		[]string{"service"},
	)

	proxiesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cfk_proxies_running",
			Help: "Number of proxy hosts currently running.",
		},
	)
)

// Metrics handles GET /metrics, refreshing the controller-derived gauges
// from a fresh snapshot before delegating to promhttp (spec's "(added)"
// observability ambient concern).
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	h.refreshMetrics()
	promhttp.Handler().ServeHTTP(w, r)
}

func (h *Handlers) refreshMetrics() {
	counts := map[domain.ServiceState]float64{}
	for _, info := range h.ctl.ServiceInfos() {
		counts[info.State]++
		serviceBackoffRetries.WithLabelValues(info.Name).Set(float64(info.BackoffRetry))
	}
	for _, state := range []domain.ServiceState{
		domain.ServiceStopped, domain.ServiceStarting, domain.ServiceRunning,
		domain.ServiceStopping, domain.ServiceBackoff, domain.ServiceFatal, domain.ServiceFail,
	} {
		servicesByState.WithLabelValues(string(state)).Set(counts[state])
	}

	running := 0
	for _, p := range h.ctl.ProxyInfos() {
		if p.Running {
			running++
		}
	}
	proxiesRunning.Set(float64(running))
}
