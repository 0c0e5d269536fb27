// ABOUTME: Audit stage emitting one structured record per admitted request
// ABOUTME: A failing sink degrades to a warning and never fails the request

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AuditRecord is the structured trace of one request passing admission.
type AuditRecord struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id"`
	Source        string    `json:"source"`
	UserID        string    `json:"user_id"`
	SessionID     string    `json:"session_id,omitempty"`
	ChatID        string    `json:"chat_id,omitempty"`
	ContentLength int       `json:"content_length"`
	ReceivedAt    time.Time `json:"received_at"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// AuditSink receives audit records. Implementations must tolerate concurrent
// writes.
type AuditSink interface {
	Write(ctx context.Context, rec AuditRecord) error
}

// SlogSink writes audit records to the structured log.
type SlogSink struct {
	Logger *slog.Logger
}

func (s *SlogSink) Write(ctx context.Context, rec AuditRecord) error {
	s.Logger.InfoContext(ctx, "request admitted",
		"audit_id", rec.ID,
		"request_id", rec.RequestID,
		"source", rec.Source,
		"user_id", rec.UserID,
		"session_id", rec.SessionID,
		"chat_id", rec.ChatID,
		"content_length", rec.ContentLength,
		"received_at", rec.ReceivedAt)
	return nil
}

// AuditStage emits one audit record per request that reaches it.
type AuditStage struct {
	order   int
	enabled bool
	sink    AuditSink
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuditStage builds the stage. A nil sink falls back to the structured log.
func NewAuditStage(order int, sink AuditSink, logger *slog.Logger) *AuditStage {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pipeline", "stage", "audit")
	if sink == nil {
		sink = &SlogSink{Logger: logger}
	}
	return &AuditStage{
		order:   order,
		enabled: true,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *AuditStage) Name() string  { return "audit" }
func (s *AuditStage) Order() int    { return s.order }
func (s *AuditStage) Enabled() bool { return s.enabled }

// SetEnabled toggles the stage without removing it from the pipeline.
func (s *AuditStage) SetEnabled(v bool) { s.enabled = v }

func (s *AuditStage) Process(ctx context.Context, req *Request) (*Request, *Rejection) {
	rec := AuditRecord{
		ID:            uuid.New().String(),
		RequestID:     req.ID,
		Source:        string(req.Source),
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		ChatID:        req.ChatID,
		ContentLength: len([]rune(req.Content)),
		ReceivedAt:    req.ReceivedAt,
		RecordedAt:    s.now(),
	}

	if err := s.sink.Write(ctx, rec); err != nil {
		// Audit is best-effort: a broken sink must not reject traffic.
		s.logger.Warn("audit sink write failed", "request_id", req.ID, "error", err)
	}
	return req, nil
}
