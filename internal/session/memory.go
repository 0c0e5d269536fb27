// ABOUTME: In-memory session store with per-user caps and TTL expiry
// ABOUTME: Background sweep goroutine removes expired records periodically

package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

// MemoryStore keeps sessions in process memory. All operations hold the
// store mutex for their whole read-modify-write, so concurrent requests
// never interleave inside one record's update.
type MemoryStore struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}

	done   chan struct{}
	closed bool
	now    func() time.Time
}

// NewMemoryStore creates the store and starts its periodic sweep goroutine.
func NewMemoryStore(cfg Config, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	s := &MemoryStore{
		cfg:      cfg,
		logger:   logger.With("component", "session", "backend", "memory"),
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go s.sweepLoop()
	return s
}

func (s *MemoryStore) Create(ctx context.Context, userID string, platform message.Platform, prefs map[string]string, expiration time.Duration) (*Session, error) {
	if expiration == 0 {
		expiration = s.cfg.DefaultExpiration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictForCapLocked(userID, now)

	sess := &Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		Platform:     platform,
		CreatedAt:    now,
		LastActiveAt: now,
		State:        StateActive,
		Context: Context{
			Preferences: prefs,
		},
	}
	if expiration > 0 {
		sess.ExpiresAt = now.Add(expiration)
	}

	s.sessions[sess.ID] = sess
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[string]struct{})
	}
	s.byUser[userID][sess.ID] = struct{}{}

	s.logger.Debug("session created", "session_id", sess.ID, "user_id", userID, "platform", platform)
	return clone(sess), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Expired(s.now()) {
		s.removeLocked(sess)
		return nil, ErrNotFound
	}
	return clone(sess), nil
}

func (s *MemoryStore) Update(ctx context.Context, updated *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[updated.ID]
	if !ok || current.Expired(s.now()) {
		return ErrNotFound
	}
	s.sessions[updated.ID] = clone(updated)
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Expired(s.now()) {
		return ErrNotFound
	}
	sess.LastActiveAt = s.now()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		s.removeLocked(sess)
	}
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []*Session
	for id := range s.byUser[userID] {
		sess := s.sessions[id]
		if sess == nil {
			continue
		}
		if sess.Expired(now) {
			s.removeLocked(sess)
			continue
		}
		out = append(out, clone(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, sess := range s.sessions {
		if !sess.ExpiresAt.IsZero() && sess.ExpiresAt.Before(cutoff) {
			s.removeLocked(sess)
			removed++
		}
	}
	return removed, nil
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.done)
		s.closed = true
	}
	return nil
}

// evictForCapLocked makes room for one more session for userID by evicting
// the oldest live session when the cap would be exceeded. Must hold mu.
func (s *MemoryStore) evictForCapLocked(userID string, now time.Time) {
	if s.cfg.MaxPerUser <= 0 {
		return
	}

	var live []*Session
	for id := range s.byUser[userID] {
		sess := s.sessions[id]
		if sess == nil {
			continue
		}
		if sess.Expired(now) {
			s.removeLocked(sess)
			continue
		}
		live = append(live, sess)
	}
	if len(live) < s.cfg.MaxPerUser {
		return
	}

	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.Before(live[j].CreatedAt) })
	for len(live) >= s.cfg.MaxPerUser {
		oldest := live[0]
		s.removeLocked(oldest)
		live = live[1:]
		s.logger.Debug("evicted oldest session for user cap",
			"session_id", oldest.ID, "user_id", userID)
	}
}

// removeLocked must be called with mu held.
func (s *MemoryStore) removeLocked(sess *Session) {
	delete(s.sessions, sess.ID)
	if ids := s.byUser[sess.UserID]; ids != nil {
		delete(ids, sess.ID)
		if len(ids) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, _ := s.SweepExpired(context.Background(), s.now())
			if n > 0 {
				s.logger.Debug("swept expired sessions", "removed", n)
			}
		case <-s.done:
			return
		}
	}
}

func clone(s *Session) *Session {
	out := *s
	if s.Context.Preferences != nil {
		out.Context.Preferences = make(map[string]string, len(s.Context.Preferences))
		for k, v := range s.Context.Preferences {
			out.Context.Preferences[k] = v
		}
	}
	return &out
}
