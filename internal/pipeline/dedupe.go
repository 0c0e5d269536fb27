// ABOUTME: Deduplication stage acknowledging redelivered webhook updates
// ABOUTME: Duplicate deliveries are rejected with an acknowledging status

package pipeline

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/dedupe"
)

// CodeDuplicate marks a redelivered request that was already processed.
const CodeDuplicate = "DUPLICATE_DELIVERY"

// DedupeStage rejects requests whose identifier was already delivered within
// the cache TTL. The rejection carries a 200 status: webhook transports
// redeliver until they see success, so a duplicate must be acknowledged, not
// errored.
type DedupeStage struct {
	order   int
	enabled bool
	cache   *dedupe.Cache
	logger  *slog.Logger
}

// NewDedupeStage builds the stage around an existing cache.
func NewDedupeStage(order int, cache *dedupe.Cache, logger *slog.Logger) *DedupeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupeStage{
		order:   order,
		enabled: true,
		cache:   cache,
		logger:  logger.With("component", "pipeline", "stage", "dedupe"),
	}
}

func (s *DedupeStage) Name() string  { return "dedupe" }
func (s *DedupeStage) Order() int    { return s.order }
func (s *DedupeStage) Enabled() bool { return s.enabled }

// SetEnabled toggles the stage without removing it from the pipeline.
func (s *DedupeStage) SetEnabled(v bool) { s.enabled = v }

func (s *DedupeStage) Process(ctx context.Context, req *Request) (*Request, *Rejection) {
	if req.ID == "" {
		return req, nil
	}

	key := string(req.Source) + ":" + req.ID
	if s.cache.Seen(key) {
		s.logger.Info("duplicate delivery acknowledged",
			"request_id", req.ID, "source", req.Source)
		return nil, &Rejection{
			Code:    CodeDuplicate,
			Message: "request was already processed",
			Status:  http.StatusOK,
		}
	}
	return req, nil
}
