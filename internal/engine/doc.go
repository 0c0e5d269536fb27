// Package engine abstracts the downstream reasoning engine behind a small
// Engine interface and provides its HTTP client.
//
// The wire contract is Bot API shaped: canonical messages are rebuilt into
// Telegram-style update payloads (BuildUpdate), with surrogate numeric IDs
// derived for platforms whose identifiers are not numeric. The HTTP client
// posts updates to /v1/handle and lists capabilities from /v1/capabilities,
// honoring the caller's context for timeouts and cancellation.
package engine
