package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kushal45/reviewgraph/internal/types"
)

// Metrics records analysis unit outcomes.
//
// Metrics exposed (namespace "reviewgraph", subsystem "analysis"):
//   - units_total: finished units by tool and status
//   - unit_duration_seconds: unit latency by tool
//   - issues_total: reported issues by tool and severity
//   - skipped_files_total: files never analyzed, by reason
//   - inflight_units: units currently running
type Metrics struct {
	units    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	issues   *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	inflight prometheus.Gauge
}

// NewMetrics registers the analysis metrics with registry, or with the default
// registerer when registry is nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		units: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgraph",
			Subsystem: "analysis",
			Name:      "units_total",
			Help:      "Finished (file, analyzer) units",
		}, []string{"tool", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reviewgraph",
			Subsystem: "analysis",
			Name:      "unit_duration_seconds",
			Help:      "Duration of (file, analyzer) units",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tool"}),
		issues: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgraph",
			Subsystem: "analysis",
			Name:      "issues_total",
			Help:      "Issues reported after severity filtering",
		}, []string{"tool", "severity"}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgraph",
			Subsystem: "analysis",
			Name:      "skipped_files_total",
			Help:      "Files excluded from analysis",
		}, []string{"reason"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "reviewgraph",
			Subsystem: "analysis",
			Name:      "inflight_units",
			Help:      "Analysis units currently running",
		}),
	}
}

func (m *Metrics) unitStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) unitFinished(u types.UnitResult) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.units.WithLabelValues(u.Tool, string(u.Status)).Inc()
	m.duration.WithLabelValues(u.Tool).Observe(u.Duration.Seconds())
}

func (m *Metrics) unitCanceled(tool string) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(tool, string(types.UnitFailed)).Inc()
}

func (m *Metrics) issue(tool string, sev types.Severity) {
	if m == nil {
		return
	}
	m.issues.WithLabelValues(tool, sev.String()).Inc()
}

func (m *Metrics) fileSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}
