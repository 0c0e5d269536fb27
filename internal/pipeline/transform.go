// ABOUTME: Content normalization stage: whitespace, line endings, derived metadata
// ABOUTME: Idempotent; reapplying to already-normalized content is a no-op

package pipeline

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

var (
	horizontalRuns = regexp.MustCompile(`[ \t]+`)
	blankLineRuns  = regexp.MustCompile(`\n{3,}`)
	urlPattern     = regexp.MustCompile(`https?://\S+`)
)

// CapabilityTable is what the transform stage needs from the platform
// registry to attach capability metadata.
type CapabilityTable interface {
	Capabilities(p message.Platform) (message.Capabilities, bool)
}

// TransformStage normalizes accepted content into a common representation
// and attaches derived metadata. Every operation is a projection, so running
// the stage twice yields the same request.
type TransformStage struct {
	order   int
	enabled bool
	caps    CapabilityTable
	logger  *slog.Logger
}

// NewTransformStage builds the stage; caps may be nil, skipping capability
// metadata.
func NewTransformStage(order int, caps CapabilityTable, logger *slog.Logger) *TransformStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransformStage{
		order:   order,
		enabled: true,
		caps:    caps,
		logger:  logger.With("component", "pipeline", "stage", "transform"),
	}
}

func (s *TransformStage) Name() string  { return "transform" }
func (s *TransformStage) Order() int    { return s.order }
func (s *TransformStage) Enabled() bool { return s.enabled }

// SetEnabled toggles the stage without removing it from the pipeline.
func (s *TransformStage) SetEnabled(v bool) { s.enabled = v }

func (s *TransformStage) Process(ctx context.Context, req *Request) (*Request, *Rejection) {
	out := req.Clone()
	out.Content = Normalize(req.Content)

	if out.Metadata == nil {
		out.Metadata = make(map[string]string)
	}
	out.Metadata["normalized"] = "true"
	out.Metadata["content_length"] = strconv.Itoa(len([]rune(out.Content)))
	if urlPattern.MatchString(out.Content) {
		out.Metadata["contains_url"] = "true"
	}
	if s.caps != nil {
		if caps, ok := s.caps.Capabilities(req.Source); ok {
			out.Metadata["platform_max_length"] = strconv.Itoa(caps.MaxMessageLength)
			out.Metadata["platform_supports_buttons"] = strconv.FormatBool(caps.SupportsButtons)
		}
	}
	return out, nil
}

// Normalize rewrites content into the common representation: Unix line
// endings, single-space horizontal runs, at most one blank line in a row,
// no surrounding whitespace. Normalize(Normalize(x)) == Normalize(x).
func Normalize(content string) string {
	out := strings.ReplaceAll(content, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	out = horizontalRuns.ReplaceAllString(out, " ")

	// Trailing spaces before a newline would otherwise survive the run
	// collapse and break idempotence of the blank-line rule.
	out = strings.ReplaceAll(out, " \n", "\n")
	out = blankLineRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
