// Package metrics implements the MetricsSink interface the Orchestrator
// consumes (spec §4.10) and a concrete Prometheus-backed implementation
// registered against a caller-supplied prometheus.Registerer, per the
// External Interfaces section of spec §6. Grounded on the registerer-
// injection idiom of kadirpekel-hector's own metrics wiring (callers own
// the registry; this package never reaches for the global default).
package metrics

import "time"

// MetricsSink is the abstract interface the core depends on. An
// in-memory no-op sink is the default so the core never requires metrics
// wiring to function.
type MetricsSink interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncAgentInvocation(role string, outcome string)
	IncCacheHit()
	IncCacheMiss()
	IncCheckpointWrite(result string)
}

// NoOp is a MetricsSink that discards every observation. It is the
// Orchestrator's default when the caller supplies no sink.
type NoOp struct{}

func (NoOp) ObserveStageDuration(string, time.Duration) {}
func (NoOp) IncAgentInvocation(string, string)          {}
func (NoOp) IncCacheHit()                               {}
func (NoOp) IncCacheMiss()                              {}
func (NoOp) IncCheckpointWrite(string)                  {}
