// Package session tracks bounded-lifetime conversational sessions, one per
// (user, platform) pair, behind a pluggable Store with in-memory and SQLite
// backends. Expiry is enforced lazily on read and by a periodic sweep.
package session
