// Package metrics defines the instrumentation interface for the flush tool.
//
// The interface decouples callers from the metrics backend: the Prometheus
// implementation lives in the prometheus subpackage, and a no-op
// implementation keeps instrumented code paths free of nil checks when
// metrics are disabled.
package metrics

import "time"

// RPCMetrics records per-procedure RPC activity and flush outcomes.
type RPCMetrics interface {
	// CallStarted marks an RPC of the named procedure in flight.
	CallStarted(proc string)

	// CallCompleted records one finished RPC with its duration and whether
	// it failed. Always paired with a preceding CallStarted.
	CallCompleted(proc string, duration time.Duration, err error)

	// FlushOutcome counts one file reaching a terminal flush outcome
	// ("flushed", "flush_failed", "resolution_failed", "timed_out").
	FlushOutcome(outcome string)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

// NewNoopMetrics returns an RPCMetrics that records nothing.
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (*NoopMetrics) CallStarted(string)                         {}
func (*NoopMetrics) CallCompleted(string, time.Duration, error) {}
func (*NoopMetrics) FlushOutcome(string)                        {}
