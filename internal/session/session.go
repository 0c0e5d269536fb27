// ABOUTME: Session types and the pluggable Store interface
// ABOUTME: Bounded-lifetime conversational continuity for one (user, platform) pair

package session

import (
	"context"
	"errors"
	"time"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// State is the session lifecycle position.
type State string

const (
	StateActive     State = "ACTIVE"
	StateIdle       State = "IDLE"
	StateExpired    State = "EXPIRED"
	StateTerminated State = "TERMINATED"
)

// Context carries per-session conversational bookkeeping.
type Context struct {
	MessageCount  int               `json:"message_count"`
	LastMessageAt time.Time         `json:"last_message_at"`
	Preferences   map[string]string `json:"preferences,omitempty"`
}

// Session is one bounded-lifetime conversation record.
type Session struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	Platform     message.Platform `json:"platform"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActiveAt time.Time        `json:"last_active_at"`
	// ExpiresAt zero means the session never expires.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	State     State     `json:"state"`
	Context   Context   `json:"context"`
}

// Expired reports whether the session's lifetime has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

// Config tunes a session store.
type Config struct {
	// DefaultExpiration is applied when Create is called with zero expiration.
	DefaultExpiration time.Duration
	// MaxPerUser caps live sessions per user; exceeding it evicts the oldest.
	MaxPerUser int
	// CleanupInterval drives the periodic expired-session sweep.
	CleanupInterval time.Duration
}

// DefaultConfig matches the gateway's stock session policy.
func DefaultConfig() Config {
	return Config{
		DefaultExpiration: 30 * time.Minute,
		MaxPerUser:        5,
		CleanupInterval:   5 * time.Minute,
	}
}

// Store is the pluggable session backend. The contract holds regardless of
// backend: expiry is enforced lazily on read as well as by periodic sweep,
// and updates replace whole records.
type Store interface {
	// Create makes a new session, evicting the user's oldest live session
	// when the per-user cap would be exceeded. A zero expiration uses the
	// store's default; a negative one disables expiry.
	Create(ctx context.Context, userID string, platform message.Platform, prefs map[string]string, expiration time.Duration) (*Session, error)

	// Get returns the session or ErrNotFound. A session found expired is
	// deleted and reported as not found.
	Get(ctx context.Context, id string) (*Session, error)

	// Update replaces the stored record. ErrNotFound if absent.
	Update(ctx context.Context, s *Session) error

	// Touch bumps LastActiveAt only.
	Touch(ctx context.Context, id string) error

	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error

	// ListByUser returns the user's live sessions, opportunistically
	// filtering out expired ones.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// SweepExpired bulk-deletes sessions with ExpiresAt before cutoff and
	// returns how many were removed.
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases backend resources and stops background sweeps.
	Close() error
}
