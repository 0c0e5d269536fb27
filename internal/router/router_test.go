// ABOUTME: Tests for the resilience router's retry, breaker and fallback behavior
// ABOUTME: Uses a scripted engine stub; backoff sleeps are captured, not waited

package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/breaker"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/engine"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/session"
)

// stubEngine fails a scripted number of times before succeeding.
type stubEngine struct {
	failures int
	calls    int
	result   *engine.Result
	capsErr  error
}

func (e *stubEngine) Handle(ctx context.Context, update *telego.Update) (*engine.Result, error) {
	e.calls++
	if e.calls <= e.failures {
		return nil, errors.New("engine unavailable")
	}
	if e.result != nil {
		return e.result, nil
	}
	return &engine.Result{Text: "hi", Confidence: 0.9}, nil
}

func (e *stubEngine) ListCapabilities(ctx context.Context) ([]engine.Capability, error) {
	if e.capsErr != nil {
		return nil, e.capsErr
	}
	return []engine.Capability{{Name: "chat", Version: "1"}}, nil
}

func testMessage() *message.CanonicalMessage {
	return &message.CanonicalMessage{
		ID:        "tg-1-1",
		SessionID: "sess_abc",
		UserID:    "7",
		Timestamp: time.Now(),
		Content:   message.Content{Text: "hello"},
		Platform:  message.PlatformTelegram,
		Conversation: message.Conversation{
			ChatID: "42",
		},
	}
}

func newTestRouter(eng engine.Engine, sessions session.Store) (*Router, *[]time.Duration) {
	cfg := DefaultConfig()
	cfg.InitialDelay = 100 * time.Millisecond
	r := New(eng, sessions, cfg, breaker.Config{
		FailureThreshold: 3,
		MinimumRequests:  3,
		MonitoringPeriod: time.Minute,
		ResetTimeout:     30 * time.Second,
	}, nil)

	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func TestRouter_Route_Success(t *testing.T) {
	eng := &stubEngine{}
	r, _ := newTestRouter(eng, nil)

	resp := r.Route(context.Background(), testMessage(), nil)

	require.NotNil(t, resp)
	assert.Equal(t, "hi", resp.Content.Text)
	assert.Equal(t, "tg-1-1", resp.RequestID)
	assert.Equal(t, "42", resp.Content.Metadata["chat_id"])
	assert.Equal(t, "telegram", resp.Content.Metadata["platform"])
	assert.Equal(t, message.FormatMarkdown, resp.Formatting.Mode)
	assert.InDelta(t, 0.9, resp.Stats.Confidence, 0.001)
	assert.Equal(t, 1, eng.calls)
}

func TestRouter_Dispatch_RetriesWithBackoff(t *testing.T) {
	eng := &stubEngine{failures: 2}
	r, slept := newTestRouter(eng, nil)

	resp, outcome := r.Dispatch(context.Background(), testMessage(), nil)

	assert.True(t, outcome.Success)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, "hi", resp.Content.Text)
	// Backoff doubles: 100ms, 200ms.
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept)
}

func TestRouter_Dispatch_ExhaustedRetriesFallsBack(t *testing.T) {
	eng := &stubEngine{failures: 100}
	r, _ := newTestRouter(eng, nil)

	resp, outcome := r.Dispatch(context.Background(), testMessage(), nil)

	assert.False(t, outcome.Success)
	assert.Error(t, outcome.Err)
	assert.Equal(t, 3, eng.calls)

	// The caller always gets a presentable response, never an error.
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.Content.Text)
	assert.Equal(t, "dispatch_failed", resp.Content.Metadata["error"])
	assert.Equal(t, "42", resp.Content.Metadata["chat_id"])
}

func TestRouter_Dispatch_CanceledBackoffReportsAttemptsMade(t *testing.T) {
	eng := &stubEngine{failures: 100}
	r, _ := newTestRouter(eng, nil)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	resp, outcome := r.Dispatch(context.Background(), testMessage(), nil)

	// The first backoff wait was cut short, so only one attempt was made.
	assert.Equal(t, 1, outcome.Attempts)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
	assert.Equal(t, 1, eng.calls)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.Content.Text)
}

func TestRouter_Dispatch_EveryAttemptFeedsBreaker(t *testing.T) {
	eng := &stubEngine{failures: 100}
	r, _ := newTestRouter(eng, nil)

	r.Dispatch(context.Background(), testMessage(), nil)

	status := r.BreakerStatus()
	require.Len(t, status, 1)
	assert.Equal(t, int64(3), status[0].TotalFailures)
	// Three failures against a threshold of three trip the circuit.
	assert.Equal(t, breaker.StateOpen, status[0].State)
}

func TestRouter_Dispatch_OpenCircuitShortCircuits(t *testing.T) {
	eng := &stubEngine{failures: 100}
	r, _ := newTestRouter(eng, nil)

	// First dispatch burns through retries and opens the breaker.
	r.Dispatch(context.Background(), testMessage(), nil)
	require.Equal(t, 3, eng.calls)

	resp, outcome := r.Dispatch(context.Background(), testMessage(), nil)

	// The engine was not called again.
	assert.Equal(t, 3, eng.calls)
	assert.ErrorIs(t, outcome.Err, breaker.ErrOpen)
	assert.Equal(t, "temporarily_unavailable", resp.Content.Metadata["error"])
	assert.NotEmpty(t, resp.Content.Text)
}

func TestRouter_Dispatch_BreakersKeyedByPlatform(t *testing.T) {
	eng := &stubEngine{failures: 3}
	r, _ := newTestRouter(eng, nil)

	// Open the telegram breaker.
	r.Dispatch(context.Background(), testMessage(), nil)

	// A different platform has its own closed breaker.
	httpMsg := testMessage()
	httpMsg.Platform = message.PlatformHTTP
	_, outcome := r.Dispatch(context.Background(), httpMsg, nil)
	assert.True(t, outcome.Success)

	assert.Len(t, r.BreakerStatus(), 2)
}

func TestRouter_Dispatch_RecordsSession(t *testing.T) {
	eng := &stubEngine{}
	store := session.NewMemoryStore(session.DefaultConfig(), nil)
	defer store.Close()
	r, _ := newTestRouter(eng, store)
	ctx := context.Background()

	sess, err := store.Create(ctx, "7", message.PlatformTelegram, nil, 0)
	require.NoError(t, err)

	resp, outcome := r.Dispatch(ctx, testMessage(), sess)
	require.True(t, outcome.Success)
	require.NotNil(t, resp)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Context.MessageCount)
	assert.False(t, got.Context.LastMessageAt.IsZero())
}

func TestRouter_Dispatch_SessionFailureDoesNotFailRoute(t *testing.T) {
	eng := &stubEngine{}
	store := session.NewMemoryStore(session.DefaultConfig(), nil)
	defer store.Close()
	r, _ := newTestRouter(eng, store)

	// A session unknown to the store: the update fails, the route succeeds.
	ghost := &session.Session{ID: "missing", UserID: "7"}
	resp, outcome := r.Dispatch(context.Background(), testMessage(), ghost)

	assert.True(t, outcome.Success)
	assert.Equal(t, "hi", resp.Content.Text)
}

func TestRouter_Capabilities_BestEffort(t *testing.T) {
	working := &stubEngine{}
	r, _ := newTestRouter(working, nil)
	caps := r.Capabilities(context.Background())
	require.Len(t, caps, 1)
	assert.Equal(t, "chat", caps[0].Name)

	broken := &stubEngine{capsErr: errors.New("engine down")}
	r2, _ := newTestRouter(broken, nil)
	caps = r2.Capabilities(context.Background())
	assert.NotNil(t, caps)
	assert.Empty(t, caps)
}
