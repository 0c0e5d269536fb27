// ABOUTME: Fixed-window rate limiting stage keyed by a configurable request attribute
// ABOUTME: Windows reset lazily on the first request after expiry

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

// RateLimitConfig is the fixed-window policy for one source class.
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
}

// KeyFunc derives the window key from a request. The default keys by
// platform and user, so one noisy user cannot exhaust a platform's budget.
type KeyFunc func(req *Request) string

// DefaultKey keys windows by platform+user.
func DefaultKey(req *Request) string {
	return string(req.Source) + ":" + req.UserID
}

// window is one fixed counting window. Reset happens lazily: the first
// request after resetAt starts a fresh window.
type window struct {
	count   int
	resetAt time.Time
}

// RateLimitStage rejects requests exceeding their source's fixed-window
// budget with a computed retry-after.
type RateLimitStage struct {
	order     int
	enabled   bool
	defaults  RateLimitConfig
	perSource map[message.Platform]RateLimitConfig
	keyFn     KeyFunc
	logger    *slog.Logger

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewRateLimitStage builds the stage. perSource overrides the defaults for
// individual platforms; a nil keyFn uses DefaultKey.
func NewRateLimitStage(order int, defaults RateLimitConfig, perSource map[message.Platform]RateLimitConfig, keyFn KeyFunc, logger *slog.Logger) *RateLimitStage {
	if keyFn == nil {
		keyFn = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitStage{
		order:     order,
		enabled:   true,
		defaults:  defaults,
		perSource: perSource,
		keyFn:     keyFn,
		logger:    logger.With("component", "pipeline", "stage", "rate_limit"),
		windows:   make(map[string]*window),
		now:       time.Now,
	}
}

func (s *RateLimitStage) Name() string  { return "rate_limit" }
func (s *RateLimitStage) Order() int    { return s.order }
func (s *RateLimitStage) Enabled() bool { return s.enabled }

// SetEnabled toggles the stage without removing it from the pipeline.
func (s *RateLimitStage) SetEnabled(v bool) { s.enabled = v }

func (s *RateLimitStage) Process(ctx context.Context, req *Request) (*Request, *Rejection) {
	cfg := s.configFor(req.Source)
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return req, nil
	}

	key := s.keyFn(req)

	// The whole read-modify-write happens under one lock acquisition, so
	// concurrent requests for the same key cannot interleave mid-update.
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(cfg.Window)}
		s.windows[key] = w
	}

	if w.count >= cfg.MaxRequests {
		retryAfter := w.resetAt.Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return nil, &Rejection{
			Code:       CodeRateLimited,
			Message:    fmt.Sprintf("rate limit exceeded, retry in %s", retryAfter.Round(time.Second)),
			Status:     http.StatusTooManyRequests,
			RetryAfter: retryAfter,
		}
	}

	w.count++
	return req, nil
}

func (s *RateLimitStage) configFor(p message.Platform) RateLimitConfig {
	if cfg, ok := s.perSource[p]; ok {
		return cfg
	}
	return s.defaults
}
