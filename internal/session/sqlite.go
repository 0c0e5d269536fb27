// ABOUTME: SQLite-backed session store using modernc.org/sqlite
// ABOUTME: Durable variant of the Store contract with an indexed user lookup

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

// timeFormat keeps sub-second precision so short expirations round-trip.
const timeFormat = time.RFC3339Nano

// SQLiteStore implements Store on a SQLite database. The secondary index on
// user_id supports ListByUser without a full scan.
type SQLiteStore struct {
	cfg    Config
	db     *sql.DB
	logger *slog.Logger

	done   chan struct{}
	closed bool
	now    func() time.Time
}

// NewSQLiteStore opens (creating if needed) a session database at path and
// starts the periodic sweep goroutine.
func NewSQLiteStore(path string, cfg Config, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "session", "backend", "sqlite"),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	go s.sweepLoop()
	s.logger.Info("session store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			platform        TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			last_active_at  TEXT NOT NULL,
			expires_at      TEXT NOT NULL DEFAULT '',
			state           TEXT NOT NULL,
			message_count   INTEGER NOT NULL DEFAULT 0,
			last_message_at TEXT NOT NULL DEFAULT '',
			preferences     TEXT NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, userID string, platform message.Platform, prefs map[string]string, expiration time.Duration) (*Session, error) {
	if expiration == 0 {
		expiration = s.cfg.DefaultExpiration
	}

	now := s.now()
	if err := s.evictForCap(ctx, userID); err != nil {
		return nil, fmt.Errorf("evicting for user cap: %w", err)
	}

	sess := &Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		Platform:     platform,
		CreatedAt:    now,
		LastActiveAt: now,
		State:        StateActive,
		Context:      Context{Preferences: prefs},
	}
	if expiration > 0 {
		sess.ExpiresAt = now.Add(expiration)
	}

	prefsJSON, err := json.Marshal(sess.Context.Preferences)
	if err != nil {
		return nil, fmt.Errorf("encoding preferences: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, platform, created_at, last_active_at,
			expires_at, state, message_count, last_message_at, preferences)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.UserID,
		string(sess.Platform),
		sess.CreatedAt.UTC().Format(timeFormat),
		sess.LastActiveAt.UTC().Format(timeFormat),
		formatOptionalTime(sess.ExpiresAt),
		string(sess.State),
		sess.Context.MessageCount,
		formatOptionalTime(sess.Context.LastMessageAt),
		string(prefsJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.scanOne(ctx, `SELECT id, user_id, platform, created_at, last_active_at,
		expires_at, state, message_count, last_message_at, preferences
		FROM sessions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}

	// Lazy expiry: a dead record found on read is removed immediately.
	if sess.Expired(s.now()) {
		if err := s.Delete(ctx, id); err != nil {
			s.logger.Warn("deleting expired session on read", "session_id", id, "error", err)
		}
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *SQLiteStore) Update(ctx context.Context, sess *Session) error {
	// Lazy expiry applies to writes too. Get removes a dead record and
	// reports it missing, matching the memory backend.
	if _, err := s.Get(ctx, sess.ID); err != nil {
		return err
	}

	prefsJSON, err := json.Marshal(sess.Context.Preferences)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET user_id = ?, platform = ?, created_at = ?,
			last_active_at = ?, expires_at = ?, state = ?, message_count = ?,
			last_message_at = ?, preferences = ?
		WHERE id = ?`,
		sess.UserID,
		string(sess.Platform),
		sess.CreatedAt.UTC().Format(timeFormat),
		sess.LastActiveAt.UTC().Format(timeFormat),
		formatOptionalTime(sess.ExpiresAt),
		string(sess.State),
		sess.Context.MessageCount,
		formatOptionalTime(sess.Context.LastMessageAt),
		string(prefsJSON),
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) Touch(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_active_at = ? WHERE id = ?`,
		s.now().UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, platform, created_at, last_active_at,
			expires_at, state, message_count, last_message_at, preferences
		FROM sessions WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	now := s.now()
	var out []*Session
	var expired []string
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		if sess.Expired(now) {
			expired = append(expired, sess.ID)
			continue
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range expired {
		if err := s.Delete(ctx, id); err != nil {
			s.logger.Warn("deleting expired session on list", "session_id", id, "error", err)
		}
	}
	return out, nil
}

func (s *SQLiteStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at != '' AND expires_at < ?`,
		cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close stops the sweep goroutine and closes the database. Safe to call once.
func (s *SQLiteStore) Close() error {
	if !s.closed {
		close(s.done)
		s.closed = true
	}
	return s.db.Close()
}

// evictForCap deletes the user's oldest live sessions until one more fits.
func (s *SQLiteStore) evictForCap(ctx context.Context, userID string) error {
	if s.cfg.MaxPerUser <= 0 {
		return nil
	}

	live, err := s.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for len(live) >= s.cfg.MaxPerUser {
		oldest := live[0]
		if err := s.Delete(ctx, oldest.ID); err != nil {
			return err
		}
		s.logger.Debug("evicted oldest session for user cap",
			"session_id", oldest.ID, "user_id", userID)
		live = live[1:]
	}
	return nil
}

func (s *SQLiteStore) scanOne(ctx context.Context, query string, args ...any) (*Session, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess                                          Session
		platform, state                               string
		createdAt, lastActiveAt, expiresAt, lastMsgAt string
		prefsJSON                                     string
	)
	err := row.Scan(&sess.ID, &sess.UserID, &platform, &createdAt, &lastActiveAt,
		&expiresAt, &state, &sess.Context.MessageCount, &lastMsgAt, &prefsJSON)
	if err != nil {
		return nil, err
	}

	sess.Platform = message.Platform(platform)
	sess.State = State(state)
	if sess.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.LastActiveAt, err = time.Parse(timeFormat, lastActiveAt); err != nil {
		return nil, fmt.Errorf("parsing last_active_at: %w", err)
	}
	if sess.ExpiresAt, err = parseOptionalTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if sess.Context.LastMessageAt, err = parseOptionalTime(lastMsgAt); err != nil {
		return nil, fmt.Errorf("parsing last_message_at: %w", err)
	}
	if err := json.Unmarshal([]byte(prefsJSON), &sess.Context.Preferences); err != nil {
		return nil, fmt.Errorf("decoding preferences: %w", err)
	}
	return &sess, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeFormat, s)
}

func (s *SQLiteStore) sweepLoop() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.SweepExpired(context.Background(), s.now())
			if err != nil {
				s.logger.Warn("periodic sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("swept expired sessions", "removed", n)
			}
		case <-s.done:
			return
		}
	}
}
