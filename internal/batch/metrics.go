package batch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline activity. A nil *Metrics records nothing.
type Metrics struct {
	entities *prometheus.CounterVec
	duration prometheus.Histogram
	running  prometheus.Gauge
	lastRun  prometheus.Gauge
}

// NewMetrics creates the pipeline collectors and registers them with reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gremio",
			Subsystem: "batch",
			Name:      "entities_total",
			Help:      "Entities processed by the batch pipeline, by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gremio",
			Subsystem: "batch",
			Name:      "entity_duration_seconds",
			Help:      "Time spent reconciling and persisting one entity",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80},
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gremio",
			Subsystem: "batch",
			Name:      "running",
			Help:      "1 while a batch run is in progress",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gremio",
			Subsystem: "batch",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last finished batch run",
		}),
	}
	reg.MustRegister(m.entities, m.duration, m.running, m.lastRun)
	return m
}

func (m *Metrics) observe(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.entities.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) start() {
	if m == nil {
		return
	}
	m.running.Set(1)
}

func (m *Metrics) finish(at time.Time) {
	if m == nil {
		return
	}
	m.running.Set(0)
	m.lastRun.Set(float64(at.Unix()))
}
