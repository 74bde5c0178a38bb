// Package prometheus implements the metrics interface with Prometheus
// collectors and an optional HTTP exposition endpoint.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/logger"
)

// RPCMetrics exposes RPC and flush activity as Prometheus collectors.
type RPCMetrics struct {
	callsTotal    *prometheus.CounterVec
	callErrors    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	callsInFlight *prometheus.GaugeVec
	flushOutcomes *prometheus.CounterVec
}

// NewRPCMetrics registers the collectors with the default registry.
func NewRPCMetrics() *RPCMetrics {
	return &RPCMetrics{
		callsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hpcflush",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total RPC calls issued, by procedure.",
		}, []string{"proc"}),
		callErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hpcflush",
			Subsystem: "rpc",
			Name:      "call_errors_total",
			Help:      "RPC calls that returned an error, by procedure.",
		}, []string{"proc"}),
		callDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hpcflush",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC call latency, by procedure.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"proc"}),
		callsInFlight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hpcflush",
			Subsystem: "rpc",
			Name:      "calls_in_flight",
			Help:      "RPC calls currently awaiting a reply, by procedure.",
		}, []string{"proc"}),
		flushOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hpcflush",
			Name:      "flush_outcomes_total",
			Help:      "Files reaching a terminal flush outcome, by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *RPCMetrics) CallStarted(proc string) {
	m.callsInFlight.WithLabelValues(proc).Inc()
}

func (m *RPCMetrics) CallCompleted(proc string, duration time.Duration, err error) {
	m.callsInFlight.WithLabelValues(proc).Dec()
	m.callsTotal.WithLabelValues(proc).Inc()
	m.callDuration.WithLabelValues(proc).Observe(duration.Seconds())
	if err != nil {
		m.callErrors.WithLabelValues(proc).Inc()
	}
}

func (m *RPCMetrics) FlushOutcome(outcome string) {
	m.flushOutcomes.WithLabelValues(outcome).Inc()
}

// Serve exposes /metrics on addr in a background goroutine. Listen errors are
// logged, not fatal: a busy port must not stop a flush run.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("metrics listener on %s stopped: %v", addr, err)
		}
	}()
}
