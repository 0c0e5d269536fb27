// ABOUTME: Tests for the audit stage record emission and failure tolerance
// ABOUTME: A broken sink must never reject traffic

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records audit writes for inspection.
type captureSink struct {
	mu      sync.Mutex
	records []AuditRecord
	err     error
}

func (s *captureSink) Write(ctx context.Context, rec AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func TestAuditStage_EmitsRecord(t *testing.T) {
	sink := &captureSink{}
	s := NewAuditStage(50, sink, nil)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	req := testRequest()
	req.SessionID = "sess_abc"
	req.ChatID = "42"
	out, rejection := s.Process(context.Background(), req)

	require.Nil(t, rejection)
	assert.Same(t, req, out)
	require.Len(t, sink.records, 1)

	rec := sink.records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, "http", rec.Source)
	assert.Equal(t, "alice", rec.UserID)
	assert.Equal(t, "sess_abc", rec.SessionID)
	assert.Equal(t, "42", rec.ChatID)
	assert.Equal(t, len("hello"), rec.ContentLength)
	assert.Equal(t, fixed, rec.RecordedAt)
}

func TestAuditStage_SinkFailureStillAccepts(t *testing.T) {
	sink := &captureSink{err: errors.New("disk full")}
	s := NewAuditStage(50, sink, nil)

	out, rejection := s.Process(context.Background(), testRequest())
	assert.Nil(t, rejection)
	assert.NotNil(t, out)
}

func TestAuditStage_NilSinkFallsBackToLog(t *testing.T) {
	s := NewAuditStage(50, nil, nil)

	out, rejection := s.Process(context.Background(), testRequest())
	assert.Nil(t, rejection)
	assert.NotNil(t, out)
}
