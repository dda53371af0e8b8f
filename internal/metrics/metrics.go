// Package metrics exposes sync and remote-call instrumentation to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder groups the collectors registered for one process. A nil *Recorder records nothing.
type Recorder struct {
	pollOutcomes    *prometheus.CounterVec
	publishOutcomes *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
	pendingChanges  prometheus.Gauge
}

// NewRecorder registers the collectors with registerer.
func NewRecorder(registerer prometheus.Registerer) *Recorder {
	factory := promauto.With(registerer)
	return &Recorder{
		pollOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frostlog_sync_poll_total",
				Help: "Poll cycles by outcome kind",
			},
			[]string{"outcome", "trigger"},
		),
		publishOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frostlog_sync_publish_total",
				Help: "Publish attempts by outcome kind",
			},
			[]string{"outcome"},
		),
		remoteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frostlog_remote_request_duration_seconds",
				Help:    "GitHub contents API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "frostlog_remote_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		pendingChanges: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "frostlog_sync_pending_changes",
				Help: "Local changes not yet published",
			},
		),
	}
}

func (r *Recorder) ObservePoll(outcome string, manual bool) {
	if r == nil {
		return
	}
	trigger := "interval"
	if manual {
		trigger = "manual"
	}
	r.pollOutcomes.WithLabelValues(outcome, trigger).Inc()
}

func (r *Recorder) ObservePublish(outcome string) {
	if r == nil {
		return
	}
	r.publishOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveRemote records one remote call. status 0 means the request never got a response.
func (r *Recorder) ObserveRemote(method string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	r.remoteDuration.WithLabelValues(method, label).Observe(elapsed.Seconds())
}

func (r *Recorder) SetBreakerState(name string, state float64) {
	if r == nil {
		return
	}
	r.breakerState.WithLabelValues(name).Set(state)
}

func (r *Recorder) SetPendingChanges(count int) {
	if r == nil {
		return
	}
	r.pendingChanges.Set(float64(count))
}
