package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// BreakerStateSource is satisfied by resilience.Executor.
type BreakerStateSource interface {
	BreakerStates() map[string]gobreaker.State
}

// BreakerCollector exports the circuit breaker state per operation at scrape time:
// 0 closed, 1 half-open, 2 open.
type BreakerCollector struct {
	source BreakerStateSource
	desc   *prometheus.Desc
}

func NewBreakerCollector(source BreakerStateSource) *BreakerCollector {
	return &BreakerCollector{
		source: source,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "resilience", "breaker_state"),
			"Circuit breaker state by operation (0 closed, 1 half-open, 2 open).",
			[]string{"operation"},
			nil,
		),
	}
}

func (c *BreakerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *BreakerCollector) Collect(ch chan<- prometheus.Metric) {
	for op, state := range c.source.BreakerStates() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, breakerStateValue(state), op)
	}
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
