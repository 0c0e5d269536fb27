// Package breaker implements a per-dependency circuit breaker that fast-fails
// calls to a degraded downstream instead of piling retries onto it.
package breaker
