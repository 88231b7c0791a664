package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

// SearchMetrics records the solution search lifecycle.
type SearchMetrics struct {
	submitted      prometheus.Counter
	sourceTotal    *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	confidence     prometheus.Histogram
	finished       *prometheus.CounterVec
}

func NewSearchMetrics(registerer prometheus.Registerer) *SearchMetrics {
	m := &SearchMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "submitted_total",
			Help:      "Total accepted solution searches.",
		}),
		sourceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "source_total",
			Help:      "Source units of work by outcome.",
		}, []string{"source", "outcome"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "source_duration_seconds",
			Help:      "Duration of one source unit of work.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"source"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "confidence",
			Help:      "Aggregate confidence of completed searches.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "finished_total",
			Help:      "Searches reaching a terminal status.",
		}, []string{"status"}),
	}
	registerer.MustRegister(m.submitted, m.sourceTotal, m.sourceDuration, m.confidence, m.finished)
	return m
}

func (m *SearchMetrics) SearchSubmitted() {
	m.submitted.Inc()
}

func (m *SearchMetrics) SourceFinished(source domain.Source, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.sourceTotal.WithLabelValues(string(source), outcome).Inc()
	m.sourceDuration.WithLabelValues(string(source)).Observe(duration.Seconds())
}

func (m *SearchMetrics) SearchFinished(status domain.SearchStatus, confidence float64) {
	m.finished.WithLabelValues(string(status)).Inc()
	if status == domain.SearchStatusCompleted {
		m.confidence.Observe(confidence)
	}
}
