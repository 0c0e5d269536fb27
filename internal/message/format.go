// ABOUTME: Response shaping against platform capability limits
// ABOUTME: Sentence-boundary truncation, formatting degradation, action capping

package message

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

const ellipsis = "…"

// shapeResponse returns a copy of resp fitted to the platform's limits.
// Oversized text is truncated at a sentence boundary, unsupported formatting
// is degraded, and actions beyond the platform cap are dropped. Every
// degradation is logged as a warning; shaping never fails.
func shapeResponse(resp *CanonicalResponse, caps Capabilities, logger *slog.Logger) *CanonicalResponse {
	shaped := *resp
	shaped.Content.Actions = append([]Action(nil), resp.Content.Actions...)
	shaped.Content.Attachments = append([]Attachment(nil), resp.Content.Attachments...)

	shaped.Formatting.Mode = degradeMode(resp.Formatting.Mode, caps)
	if shaped.Formatting.Mode != resp.Formatting.Mode {
		logger.Warn("degrading response formatting",
			"from", resp.Formatting.Mode,
			"to", shaped.Formatting.Mode,
			"request_id", resp.RequestID)
	}

	switch shaped.Formatting.Mode {
	case FormatPlaintext:
		if resp.Formatting.Mode == FormatMarkdown {
			shaped.Content.Text = markdownToPlain(shaped.Content.Text)
		}
	case FormatHTML:
		if resp.Formatting.Mode == FormatMarkdown {
			shaped.Content.Text = markdownToHTML(shaped.Content.Text)
		}
	}

	if caps.MaxMessageLength > 0 && len([]rune(shaped.Content.Text)) > caps.MaxMessageLength {
		shaped.Content.Text = truncateAtSentence(shaped.Content.Text, caps.MaxMessageLength)
		logger.Warn("truncating oversized response",
			"limit", caps.MaxMessageLength,
			"request_id", resp.RequestID)
	}

	if caps.MaxActions >= 0 && len(shaped.Content.Actions) > caps.MaxActions {
		logger.Warn("dropping actions beyond platform cap",
			"cap", caps.MaxActions,
			"dropped", len(shaped.Content.Actions)-caps.MaxActions,
			"request_id", resp.RequestID)
		shaped.Content.Actions = shaped.Content.Actions[:caps.MaxActions]
	}
	if caps.MaxAttachments >= 0 && len(shaped.Content.Attachments) > caps.MaxAttachments {
		shaped.Content.Attachments = shaped.Content.Attachments[:caps.MaxAttachments]
	}

	if shaped.Formatting.ActionsPerRow <= 0 {
		shaped.Formatting.ActionsPerRow = caps.ActionsPerRow
	}
	return &shaped
}

// degradeMode picks the richest formatting mode the platform supports,
// preferring the requested one.
func degradeMode(requested FormatMode, caps Capabilities) FormatMode {
	switch requested {
	case FormatMarkdown:
		if caps.SupportsMarkdown {
			return FormatMarkdown
		}
		if caps.SupportsHTML {
			return FormatHTML
		}
	case FormatHTML:
		if caps.SupportsHTML {
			return FormatHTML
		}
	case FormatPlaintext, "":
		return FormatPlaintext
	}
	return FormatPlaintext
}

// truncateAtSentence cuts text to at most max runes, preferring to break at
// the last sentence end in the allowed range and falling back to the last
// word boundary, then to a hard cut. The ellipsis counts against the limit.
func truncateAtSentence(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 1 {
		return ellipsis
	}

	window := string(runes[:max-1])
	cut := -1
	for _, sep := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n", "\n"} {
		if i := strings.LastIndex(window, sep); i > cut {
			cut = i + 1 // keep the punctuation
		}
	}
	// A boundary in the first half throws away too much; fall back to words.
	if cut < max/2 {
		if i := strings.LastIndexAny(window, " \t"); i > max/2 {
			cut = i
		} else {
			cut = len(window)
		}
	}
	return strings.TrimRight(window[:cut], " \t\n") + ellipsis
}

var (
	mdLink      = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)
	mdEmphasis  = regexp.MustCompile(`(\*\*|__|\*|_|~~|` + "`" + `)`)
	mdHeading   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdBlockMark = regexp.MustCompile(`(?m)^>\s?`)
)

// markdownToPlain strips common markdown markup, keeping link text.
func markdownToPlain(md string) string {
	out := mdLink.ReplaceAllString(md, "$1")
	out = mdHeading.ReplaceAllString(out, "")
	out = mdBlockMark.ReplaceAllString(out, "")
	out = mdEmphasis.ReplaceAllString(out, "")
	return out
}

// markdownToHTML renders markdown as HTML. On render failure the raw text is
// returned unchanged; formatting is best-effort.
func markdownToHTML(md string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return md
	}
	return strings.TrimSpace(buf.String())
}

// actionRows splits actions into fixed-width rows for platforms with a
// button grid. perRow defaults to 3.
func actionRows(actions []Action, perRow int) [][]Action {
	if perRow <= 0 {
		perRow = 3
	}
	var rows [][]Action
	for len(actions) > 0 {
		n := perRow
		if len(actions) < n {
			n = len(actions)
		}
		rows = append(rows, actions[:n])
		actions = actions[n:]
	}
	return rows
}
