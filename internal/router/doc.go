// Package router dispatches canonical messages to the reasoning engine with
// bounded retries and per-platform circuit breaking.
//
// Every dispatch attempt, including retries, feeds the platform's breaker so
// a failing engine trips it quickly. When the breaker is open, or retries are
// exhausted, the router returns a safe fallback response instead of an error;
// user-facing delivery never fails because the engine is down.
//
// Backoff between attempts is exponential from the configured initial delay,
// capped at the configured maximum. Session bookkeeping happens after a
// successful dispatch and is best-effort.
package router
