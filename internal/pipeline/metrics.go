package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Step outcomes.
const (
	resultProcessed = "processed"
	resultSkipped   = "skipped"
	resultEmpty     = "empty"
)

// Metrics counts what a run did. A nil *Metrics records nothing.
type Metrics struct {
	Steps        *prometheus.CounterVec
	Skips        *prometheus.CounterVec
	Points       prometheus.Counter
	Records      prometheus.Counter
	StepDuration prometheus.Histogram
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goesjson_steps_total",
			Help: "Time steps handled, labeled by result (processed, skipped, empty).",
		}, []string{"result"}),
		Skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goesjson_skips_total",
			Help: "Skipped time steps, labeled by reason.",
		}, []string{"reason"}),
		Points: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goesjson_points_total",
			Help: "Points retained after filtering.",
		}),
		Records: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goesjson_records_total",
			Help: "Output records written.",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "goesjson_step_duration_seconds",
			Help:    "Time to fetch and process one time step.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
	for _, c := range []prometheus.Collector{m.Steps, m.Skips, m.Points, m.Records, m.StepDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) step(result string, seconds float64) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(result).Inc()
	m.StepDuration.Observe(seconds)
}

func (m *Metrics) skip(reason string) {
	if m == nil {
		return
	}
	m.Skips.WithLabelValues(reason).Inc()
}

func (m *Metrics) points(n int) {
	if m == nil {
		return
	}
	m.Points.Add(float64(n))
}

func (m *Metrics) record(n int) {
	if m == nil {
		return
	}
	m.Records.Add(float64(n))
}
