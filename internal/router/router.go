// ABOUTME: Resilience router dispatching canonical messages to the engine
// ABOUTME: Circuit breaker gating, bounded retries with backoff, safe responses

package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/breaker"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/engine"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/session"
)

// Config tunes dispatch retry behavior.
type Config struct {
	// MaxAttempts bounds dispatch attempts per request (at least 1).
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration
	// BackoffMultiplier scales the delay after each failed attempt; the
	// delay sequence is monotonically non-decreasing.
	BackoffMultiplier float64
	// AttemptTimeout bounds each individual engine call.
	AttemptTimeout time.Duration
}

// DefaultConfig matches the gateway's stock retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		BackoffMultiplier: 2,
		AttemptTimeout:    30 * time.Second,
	}
}

// Outcome summarizes one dispatch for observability.
type Outcome struct {
	Success      bool
	Err          error
	Attempts     int
	CircuitState breaker.State
}

// Router applies retry and circuit-breaker protection around the engine.
// Route never returns an error: every downstream failure is substituted
// with a safe canonical response.
type Router struct {
	engine     engine.Engine
	sessions   session.Store
	cfg        Config
	breakerCfg breaker.Config
	logger     *slog.Logger

	mu       sync.Mutex
	breakers map[message.Platform]*breaker.Breaker

	// sleep is swappable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a router. Breakers are keyed one per origin platform; a
// different keying granularity is a constructor decision, not a code change.
func New(eng engine.Engine, sessions session.Store, cfg Config, breakerCfg breaker.Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	return &Router{
		engine:     eng,
		sessions:   sessions,
		cfg:        cfg,
		breakerCfg: breakerCfg,
		logger:     logger.With("component", "router"),
		breakers:   make(map[message.Platform]*breaker.Breaker),
		sleep:      sleepCtx,
	}
}

// Route dispatches a canonical message and always produces a response.
func (r *Router) Route(ctx context.Context, msg *message.CanonicalMessage, sess *session.Session) *message.CanonicalResponse {
	resp, _ := r.Dispatch(ctx, msg, sess)
	return resp
}

// Dispatch is Route with the dispatch outcome exposed for callers that
// record it.
func (r *Router) Dispatch(ctx context.Context, msg *message.CanonicalMessage, sess *session.Session) (*message.CanonicalResponse, Outcome) {
	br := r.breakerFor(msg.Platform)
	start := time.Now()

	if !br.Allow() {
		r.logger.Warn("circuit open, skipping dispatch",
			"request_id", msg.ID, "platform", msg.Platform)
		return r.unavailableResponse(msg), Outcome{
			Err:          breaker.ErrOpen,
			CircuitState: br.Status().State,
		}
	}

	update := engine.BuildUpdate(msg)
	delay := r.cfg.InitialDelay
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		attempts = attempt
		result, elapsed, err := r.attempt(ctx, update)
		if err == nil {
			br.RecordSuccess(elapsed)
			r.recordSession(ctx, sess, msg)
			resp := r.successResponse(msg, result, time.Since(start))
			return resp, Outcome{
				Success:      true,
				Attempts:     attempt,
				CircuitState: br.Status().State,
			}
		}

		br.RecordFailure(elapsed)
		lastErr = err
		r.logger.Warn("dispatch attempt failed",
			"request_id", msg.ID,
			"platform", msg.Platform,
			"attempt", attempt,
			"error", err)

		if attempt < r.cfg.MaxAttempts {
			if err := r.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
			delay = time.Duration(float64(delay) * r.cfg.BackoffMultiplier)
		}
	}

	return r.failureResponse(msg, lastErr), Outcome{
		Err:          lastErr,
		Attempts:     attempts,
		CircuitState: br.Status().State,
	}
}

// Capabilities is a best-effort passthrough to the engine; failures yield an
// empty list rather than an error.
func (r *Router) Capabilities(ctx context.Context) []engine.Capability {
	caps, err := r.engine.ListCapabilities(ctx)
	if err != nil {
		r.logger.Warn("listing engine capabilities failed", "error", err)
		return []engine.Capability{}
	}
	return caps
}

// BreakerStatus exposes breaker snapshots for the health endpoint.
func (r *Router) BreakerStatus() []breaker.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]breaker.Status, 0, len(r.breakers))
	for _, br := range r.breakers {
		out = append(out, br.Status())
	}
	return out
}

// attempt runs one engine call bounded by the attempt timeout.
func (r *Router) attempt(ctx context.Context, update *telego.Update) (*engine.Result, time.Duration, error) {
	attemptCtx := ctx
	if r.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := r.engine.Handle(attemptCtx, update)
	return result, time.Since(start), err
}

func (r *Router) breakerFor(p message.Platform) *breaker.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	br, ok := r.breakers[p]
	if !ok {
		br = breaker.New(string(p), r.breakerCfg, r.logger)
		r.breakers[p] = br
	}
	return br
}

// recordSession bumps the session's conversational counters. Session
// bookkeeping is best-effort; a store failure never fails the route.
func (r *Router) recordSession(ctx context.Context, sess *session.Session, msg *message.CanonicalMessage) {
	if sess == nil || r.sessions == nil {
		return
	}

	now := time.Now()
	sess.LastActiveAt = now
	sess.Context.MessageCount++
	sess.Context.LastMessageAt = now
	if err := r.sessions.Update(ctx, sess); err != nil {
		r.logger.Warn("session update failed",
			"session_id", sess.ID, "request_id", msg.ID, "error", err)
	}
}

func (r *Router) successResponse(msg *message.CanonicalMessage, result *engine.Result, latency time.Duration) *message.CanonicalResponse {
	resp := newResponse(msg)
	resp.Content.Text = result.Text
	resp.Stats = message.ProcessingStats{
		Latency:    latency,
		Confidence: result.Confidence,
		ToolsUsed:  result.ToolsUsed,
	}
	for k, v := range result.Metadata {
		resp.Content.Metadata[k] = v
	}
	return resp
}

func (r *Router) failureResponse(msg *message.CanonicalMessage, cause error) *message.CanonicalResponse {
	resp := newResponse(msg)
	resp.Content.Text = "Sorry, I couldn't process your message right now. Please try again in a moment."
	resp.Content.Metadata["error"] = "dispatch_failed"
	if cause != nil {
		r.logger.Error("dispatch exhausted retries",
			"request_id", msg.ID, "platform", msg.Platform, "error", cause)
	}
	return resp
}

func (r *Router) unavailableResponse(msg *message.CanonicalMessage) *message.CanonicalResponse {
	resp := newResponse(msg)
	resp.Content.Text = "The service is temporarily unavailable. Please try again shortly."
	resp.Content.Metadata["error"] = "temporarily_unavailable"
	return resp
}

// newResponse builds the response skeleton, carrying the destination chat
// and origin platform in metadata for the formatter.
func newResponse(msg *message.CanonicalMessage) *message.CanonicalResponse {
	return &message.CanonicalResponse{
		ID:        uuid.New().String(),
		RequestID: msg.ID,
		Timestamp: time.Now(),
		Content: message.ResponseContent{
			Metadata: map[string]string{
				"chat_id":  msg.Conversation.ChatID,
				"platform": string(msg.Platform),
			},
		},
		Formatting: message.Formatting{Mode: message.FormatMarkdown},
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
