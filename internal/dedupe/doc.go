// Package dedupe tracks recently delivered request identifiers so redelivered
// webhook updates can be acknowledged without being processed again.
package dedupe
