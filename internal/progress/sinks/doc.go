// Package sinks implements progress consumers for structured logs, Prometheus
// and the cycle repository. Each sink satisfies progress.Sink.
package sinks
