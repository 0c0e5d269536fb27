// ABOUTME: Validation stage enforcing per-source content rules
// ABOUTME: Length bounds, blocked patterns, control characters, identifier shape

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

// ValidationRules is the per-source content policy.
type ValidationRules struct {
	MinLength       int
	MaxLength       int
	BlockedPatterns []*regexp.Regexp
}

// CompilePatterns compiles blocked-content patterns, failing on the first
// invalid expression so a bad config is caught at startup, not per request.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling blocked pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// userIDPattern is the permitted identifier alphabet across all sources.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@-]+$`)

// ValidateStage enforces per-source validation rules and returns a sanitized
// copy of accepted requests.
type ValidateStage struct {
	order     int
	enabled   bool
	defaults  ValidationRules
	perSource map[message.Platform]ValidationRules
	logger    *slog.Logger
}

// NewValidateStage builds the stage. perSource overrides defaults per platform.
func NewValidateStage(order int, defaults ValidationRules, perSource map[message.Platform]ValidationRules, logger *slog.Logger) *ValidateStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidateStage{
		order:     order,
		enabled:   true,
		defaults:  defaults,
		perSource: perSource,
		logger:    logger.With("component", "pipeline", "stage", "validate"),
	}
}

func (s *ValidateStage) Name() string  { return "validate" }
func (s *ValidateStage) Order() int    { return s.order }
func (s *ValidateStage) Enabled() bool { return s.enabled }

// SetEnabled toggles the stage without removing it from the pipeline.
func (s *ValidateStage) SetEnabled(v bool) { s.enabled = v }

func (s *ValidateStage) Process(ctx context.Context, req *Request) (*Request, *Rejection) {
	rules := s.rulesFor(req.Source)

	if req.UserID == "" || !userIDPattern.MatchString(req.UserID) {
		return nil, &Rejection{
			Code:    CodeValidation,
			Message: "invalid user identifier",
			Status:  http.StatusBadRequest,
		}
	}

	sanitized := stripControl(strings.TrimSpace(req.Content))
	length := len([]rune(sanitized))

	if length == 0 || (rules.MinLength > 0 && length < rules.MinLength) {
		return nil, &Rejection{
			Code:    CodeValidation,
			Message: "message content is too short",
			Status:  http.StatusBadRequest,
		}
	}
	if rules.MaxLength > 0 && length > rules.MaxLength {
		return nil, &Rejection{
			Code:    CodeTooLarge,
			Message: fmt.Sprintf("message exceeds maximum length of %d", rules.MaxLength),
			Status:  http.StatusRequestEntityTooLarge,
		}
	}

	for _, re := range rules.BlockedPatterns {
		if re.MatchString(sanitized) {
			s.logger.Info("blocked content pattern matched",
				"request_id", req.ID, "pattern", re.String())
			return nil, &Rejection{
				Code:    CodeValidation,
				Message: "message contains disallowed content",
				Status:  http.StatusBadRequest,
			}
		}
	}

	out := req.Clone()
	out.Content = sanitized
	return out, nil
}

func (s *ValidateStage) rulesFor(p message.Platform) ValidationRules {
	if rules, ok := s.perSource[p]; ok {
		return rules
	}
	return s.defaults
}

// stripControl removes control characters, keeping tabs and newlines.
func stripControl(in string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, in)
}
