// ABOUTME: Ordered admission pipeline applied to every inbound request
// ABOUTME: Each stage accepts with a replacement request or rejects terminally

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

// Request is the admission-pipeline view of one inbound request. Stages never
// mutate a request in place; they return a replacement copy, so a faulting
// stage cannot corrupt what earlier stages produced.
type Request struct {
	ID         string
	Source     message.Platform
	ReceivedAt time.Time
	UserID     string
	ChatID     string
	SessionID  string
	Content    string
	Metadata   map[string]string
	Headers    map[string]string
}

// Clone returns a deep copy suitable for a stage to modify and return.
func (r *Request) Clone() *Request {
	out := *r
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	return &out
}

// Rejection codes emitted by the built-in stages.
const (
	CodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	CodeAuthFailed     = "AUTHENTICATION_FAILED"
	CodeValidation     = "VALIDATION_FAILED"
	CodeTooLarge       = "MESSAGE_TOO_LARGE"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeSourceDisabled = "SOURCE_DISABLED"
)

// Rejection is the terminal outcome of a refused request: a machine-readable
// code, a human message, and a suggested transport status. Raw internal
// errors never leave the pipeline.
type Rejection struct {
	Code       string
	Message    string
	Status     int
	RetryAfter time.Duration
}

// Stage is one admission policy. Process returns either a replacement request
// (accept) or a rejection; exactly one of the two is non-nil.
type Stage interface {
	Name() string
	Order() int
	Enabled() bool
	Process(ctx context.Context, req *Request) (*Request, *Rejection)
}

// Pipeline runs stages in ascending order. The pipeline itself never panics
// outward: a stage fault becomes a generic internal-error rejection for that
// request and leaves every other in-flight request untouched.
type Pipeline struct {
	stages  []Stage
	logger  *slog.Logger
	stats   *Stats
	metrics *Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics attaches prometheus collectors to the pipeline.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a pipeline from the given stages, sorted by Order. Disabled
// stages are kept in place but skipped at run time.
func New(logger *slog.Logger, stages []Stage, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := append([]Stage(nil), stages...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order() < sorted[j].Order() })

	p := &Pipeline{
		stages: sorted,
		logger: logger.With("component", "pipeline"),
		stats:  newStats(sorted),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the configured stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Stats returns the pipeline's running statistics.
func (p *Pipeline) Stats() StatsSnapshot {
	return p.stats.snapshot()
}

// Admit runs the request through every enabled stage in order. The returned
// request is the last stage's output; a non-nil rejection is terminal and
// means later stages did not run.
func (p *Pipeline) Admit(ctx context.Context, req *Request) (*Request, *Rejection) {
	p.stats.begin()
	defer p.stats.end()
	if p.metrics != nil {
		p.metrics.requests.Inc()
	}

	current := req
	for _, stage := range p.stages {
		if !stage.Enabled() {
			continue
		}

		next, rejection := p.runStage(ctx, stage, current)
		if rejection != nil {
			p.stats.reject(stage.Name())
			if p.metrics != nil {
				p.metrics.rejections.WithLabelValues(stage.Name(), rejection.Code).Inc()
			}
			p.logger.Info("request rejected",
				"request_id", current.ID,
				"source", current.Source,
				"stage", stage.Name(),
				"code", rejection.Code)
			return nil, rejection
		}
		if next != nil {
			current = next
		}
	}

	p.stats.accept()
	return current, nil
}

// runStage executes one stage, converting panics into internal-error
// rejections and recording per-stage latency.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, req *Request) (next *Request, rejection *Rejection) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("stage panicked",
				"stage", stage.Name(),
				"request_id", req.ID,
				"panic", fmt.Sprint(r))
			next = nil
			rejection = &Rejection{
				Code:    CodeInternalError,
				Message: "internal error while processing the request",
				Status:  http.StatusInternalServerError,
			}
		}
		elapsed := time.Since(start)
		p.stats.observe(stage.Name(), elapsed, rejection != nil)
		if p.metrics != nil {
			p.metrics.stageLatency.WithLabelValues(stage.Name()).Observe(elapsed.Seconds())
		}
	}()

	return stage.Process(ctx, req)
}
