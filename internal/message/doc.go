// Package message defines the canonical, platform-independent message and
// response model and the per-platform converter bundles.
//
// Everything behind the admission pipeline operates on CanonicalMessage and
// CanonicalResponse. The Registry maps a Platform tag to a Bundle of
// {parse, format, detect, capabilities}; adding a platform means registering
// one new bundle and touches no existing code path.
//
// Formatting is degrade-only: responses that exceed a platform's limits are
// truncated at sentence boundaries, unsupported markup is stripped or
// transformed, and surplus actions are dropped. Degradation logs a warning
// and never fails a request.
package message
