// Package metrics exposes Prometheus counters and histograms for the
// engine. Collectors register with the default registry on import.
package metrics

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var (
	// RequestsTotal counts external requests by operation and result
	// (ok, rejected, fatal).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabletop_requests_total",
		Help: "External requests by operation and result",
	}, []string{"op", "result"})

	// RequestDuration tracks request latency, snapshot and persist included.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tabletop_request_duration_seconds",
		Help:    "Request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{"op"})

	// ActionsExecuted counts executed actions and effects by kind.
	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabletop_actions_executed_total",
		Help: "Executed actions and effects by kind",
	}, []string{"kind"})

	// Rollbacks counts rollbacks by mode: immediate, consent, declined.
	Rollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabletop_rollbacks_total",
		Help: "Rollbacks by mode",
	}, []string{"mode"})

	// ReplayedEvents counts events re-run during replay.
	ReplayedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tabletop_replayed_events_total",
		Help: "History events re-run during replay",
	})

	// SolverSubsets counts modifier subsets evaluated by the cost resolver.
	SolverSubsets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tabletop_solver_subsets_total",
		Help: "Modifier subsets evaluated by the cost resolver",
	})

	// SolverOutcomes tracks how many payable outcomes each resolve found.
	SolverOutcomes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tabletop_solver_outcomes",
		Help:    "Payable outcomes per resolve",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 64},
	})
)

// Observe records one finished request.
func Observe(op string, err error, seconds float64, fatal bool) {
	result := "ok"
	switch {
	case err != nil && fatal:
		result = "fatal"
	case err != nil:
		result = "rejected"
	}
	RequestsTotal.WithLabelValues(op, result).Inc()
	RequestDuration.WithLabelValues(op).Observe(seconds)
}

// WriteText writes every tabletop metric family in the Prometheus text
// exposition format.
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "tabletop_") {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
