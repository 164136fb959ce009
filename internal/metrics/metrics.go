// Package metrics exposes Prometheus instrumentation for model calls,
// judge synthesis, debate rounds, and job lifecycle events.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric this service emits behind its own
// prometheus.Registry, so tests can spin up an isolated instance instead
// of colliding on the global default registry.
type Registry struct {
	registry *prometheus.Registry

	ModelCallDuration *prometheus.HistogramVec
	ModelCallTotal    *prometheus.CounterVec
	JudgeCallDuration prometheus.Histogram
	DebateRoundsTotal prometheus.Counter
	JobsTotal         *prometheus.CounterVec
	JobDuration       prometheus.Histogram
	ActiveJobs        prometheus.Gauge
}

// New builds a Registry with every collector registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		ModelCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "model",
			Name:      "call_duration_seconds",
			Help:      "Latency of individual model calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model_id", "success"}),
		ModelCallTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "model",
			Name:      "calls_total",
			Help:      "Total model calls, partitioned by outcome.",
		}, []string{"model_id", "success"}),
		JudgeCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "judge",
			Name:      "call_duration_seconds",
			Help:      "Latency of judge synthesis calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		DebateRoundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "debate",
			Name:      "rounds_total",
			Help:      "Total debate rounds executed across all requests.",
		}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "job",
			Name:      "total",
			Help:      "Total deep-research jobs, partitioned by terminal status.",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a deep-research job from running to terminal.",
			Buckets:   []float64{1, 2, 4, 6, 8, 12, 20, 30, 60},
		}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "job",
			Name:      "active",
			Help:      "Number of jobs currently running.",
		}),
	}

	reg.MustRegister(
		r.ModelCallDuration,
		r.ModelCallTotal,
		r.JudgeCallDuration,
		r.DebateRoundsTotal,
		r.JobsTotal,
		r.JobDuration,
		r.ActiveJobs,
	)
	return r
}

// Handler returns an http.Handler serving this registry in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveModelCall records the outcome and latency of one model call.
func (r *Registry) ObserveModelCall(modelID string, success bool, latency time.Duration) {
	label := successLabel(success)
	r.ModelCallDuration.WithLabelValues(modelID, label).Observe(latency.Seconds())
	r.ModelCallTotal.WithLabelValues(modelID, label).Inc()
}

// ObserveJudgeCall records the latency of a judge synthesis call.
func (r *Registry) ObserveJudgeCall(latency time.Duration) {
	r.JudgeCallDuration.Observe(latency.Seconds())
}

// ObserveDebateRounds increments the debate round counter by n.
func (r *Registry) ObserveDebateRounds(n int) {
	r.DebateRoundsTotal.Add(float64(n))
}

// ObserveJobStarted increments the in-flight job gauge.
func (r *Registry) ObserveJobStarted() {
	r.ActiveJobs.Inc()
}

// ObserveJobFinished decrements the in-flight job gauge and records the
// job's terminal status and total duration.
func (r *Registry) ObserveJobFinished(status string, duration time.Duration) {
	r.ActiveJobs.Dec()
	r.JobsTotal.WithLabelValues(status).Inc()
	r.JobDuration.Observe(duration.Seconds())
}

func successLabel(success bool) string {
	if success {
		return "true"
	}
	return "false"
}
