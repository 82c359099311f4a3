package metrics

import (
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	buildDuration prom.Histogram
	buildOutcome  *prom.CounterVec
	notifications *prom.CounterVec
	reloads       prom.Counter
	liveClients   prom.Gauge
}

// NewPrometheusRecorder constructs and registers the preleganto metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "preleganto",
			Name:      "build_duration_seconds",
			Help:      "Duration of a single build (read, compile, write)",
			Buckets:   prom.DefBuckets,
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "preleganto",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by result",
		}, []string{"outcome"}),
		notifications: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "preleganto",
			Name:      "watch_notifications_total",
			Help:      "Filesystem notifications seen by the watcher",
		}, []string{"kind", "accepted"}),
		reloads: prom.NewCounter(prom.CounterOpts{
			Namespace: "preleganto",
			Name:      "livereload_broadcasts_total",
			Help:      "Reload signals sent to preview clients",
		}),
		liveClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: "preleganto",
			Name:      "livereload_clients",
			Help:      "Connected live-reload clients",
		}),
	}
	reg.MustRegister(pr.buildDuration, pr.buildOutcome, pr.notifications, pr.reloads, pr.liveClients)
	return pr
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome Outcome) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncWatchNotification(kind string, accepted bool) {
	if p == nil {
		return
	}
	p.notifications.WithLabelValues(kind, strconv.FormatBool(accepted)).Inc()
}

func (p *PrometheusRecorder) IncReloadBroadcast() {
	if p == nil {
		return
	}
	p.reloads.Inc()
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil {
		return
	}
	p.liveClients.Set(float64(n))
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
