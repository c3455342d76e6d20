// Package progress provides the event primitives, non-blocking hub, and emitter
// interface that the collection pipeline uses to report run progress. Events
// are batched on a background goroutine and fanned out to pluggable sinks such
// as structured logs or Prometheus metrics.
package progress
