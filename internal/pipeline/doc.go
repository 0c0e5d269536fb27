// Package pipeline implements the ordered admission chain applied to every
// inbound request before canonical parsing and dispatch.
//
// # Stage contract
//
// A Stage either accepts a request by returning a replacement copy, or
// rejects it with a machine-readable code, human message and status hint.
// Stages run in ascending Order; a rejection is terminal. The canonical
// order is:
//
//	rate_limit (10) -> auth (20) -> validate (30) -> transform (40) -> dedupe (45) -> audit (50)
//
// Requests are never mutated in place. A stage that panics is converted into
// a generic internal-error rejection for that request only; other in-flight
// requests are unaffected.
//
// # Statistics
//
// The pipeline keeps approximate running statistics (throughput, per-stage
// latency and error counts, active requests) with atomic counters so
// recording never blocks the request path. Prometheus collectors can be
// attached with WithMetrics.
package pipeline
