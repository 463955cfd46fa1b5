package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK         = "ok"
	outcomePartial    = "partial"
	outcomeFailed     = "failed"
	outcomeInvalid    = "invalid"
	outcomeSuperseded = "superseded"
)

type metrics struct {
	comparisons *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer, activeSessions func() float64) *metrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "surveylens",
		Name:      "active_sessions",
		Help:      "Client sessions holding a comparator.",
	}, activeSessions)

	return &metrics{
		comparisons: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surveylens",
			Name:      "comparisons_total",
			Help:      "Comparisons served, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "surveylens",
			Name:      "comparison_duration_seconds",
			Help:      "Time spent computing a comparison.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}
