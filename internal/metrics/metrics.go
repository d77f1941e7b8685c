package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "animation_pipeline"

// Recorder collects pipeline metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	entities      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	activeJobs    prometheus.Gauge
}

// NewRecorder creates a recorder registered on its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome (completed, aborted, cancelled).",
		}, []string{"outcome"}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_total",
			Help:      "Entity jobs by terminal stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each external call made by entity jobs.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Entity jobs currently holding a parallelism slot.",
		}),
	}
	r.registry.MustRegister(r.runs, r.entities, r.stageDuration, r.activeJobs)
	r.registry.MustRegister(collectors.NewGoCollector())
	return r
}

// Run records the outcome of a whole run
func (r *Recorder) Run(outcome string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
}

// Entity records the terminal state of one entity job
func (r *Recorder) Entity(stage, outcome string) {
	if r == nil {
		return
	}
	r.entities.WithLabelValues(stage, outcome).Inc()
}

// ObserveStage records how long a stage call took
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// JobStarted increments the active job gauge
func (r *Recorder) JobStarted() {
	if r == nil {
		return
	}
	r.activeJobs.Inc()
}

// JobFinished decrements the active job gauge
func (r *Recorder) JobFinished() {
	if r == nil {
		return
	}
	r.activeJobs.Dec()
}

// Handler serves the recorder's registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
