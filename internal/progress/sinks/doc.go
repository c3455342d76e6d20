// Package sinks implements concrete progress consumers for structured logging
// and Prometheus. Each sink satisfies progress.Sink and is safe for repeated
// Consume/Close cycles.
package sinks
