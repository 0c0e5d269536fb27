// ABOUTME: Tests for response shaping: truncation, degradation, action rows
// ABOUTME: Exercises sentence-boundary cuts and markdown fallback conversion

package message

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateAtSentence_ShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "hello", truncateAtSentence("hello", 100))
}

func TestTruncateAtSentence_CutsAtSentenceBoundary(t *testing.T) {
	text := "First sentence. Second sentence. Third sentence that runs long."
	got := truncateAtSentence(text, 40)

	assert.True(t, strings.HasSuffix(got, ellipsis))
	assert.LessOrEqual(t, len([]rune(got)), 40)
	// The cut lands after a full sentence, not mid-word.
	assert.Equal(t, "First sentence. Second sentence."+ellipsis, got)
}

func TestTruncateAtSentence_FallsBackToWordBoundary(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	got := truncateAtSentence(text, 30)

	assert.True(t, strings.HasSuffix(got, ellipsis))
	assert.LessOrEqual(t, len([]rune(got)), 30)
	trimmed := strings.TrimSuffix(got, ellipsis)
	assert.False(t, strings.HasSuffix(trimmed, " "))
	// No partial word survives the cut.
	for _, w := range strings.Fields(trimmed) {
		assert.Contains(t, text, w)
	}
}

func TestTruncateAtSentence_HardCutWhenNoBoundary(t *testing.T) {
	text := strings.Repeat("a", 100)
	got := truncateAtSentence(text, 10)
	assert.Equal(t, strings.Repeat("a", 9)+ellipsis, got)
}

func TestDegradeMode(t *testing.T) {
	md := Capabilities{SupportsMarkdown: true, SupportsHTML: true}
	htmlOnly := Capabilities{SupportsHTML: true}
	plain := Capabilities{}

	assert.Equal(t, FormatMarkdown, degradeMode(FormatMarkdown, md))
	assert.Equal(t, FormatHTML, degradeMode(FormatMarkdown, htmlOnly))
	assert.Equal(t, FormatPlaintext, degradeMode(FormatMarkdown, plain))
	assert.Equal(t, FormatPlaintext, degradeMode(FormatHTML, plain))
	assert.Equal(t, FormatPlaintext, degradeMode("", md))
}

func TestShapeResponse_DoesNotMutateInput(t *testing.T) {
	resp := &CanonicalResponse{
		Content: ResponseContent{
			Text:    strings.Repeat("word ", 100),
			Actions: []Action{{ID: "1"}, {ID: "2"}},
		},
		Formatting: Formatting{Mode: FormatMarkdown},
	}
	caps := Capabilities{MaxMessageLength: 50, MaxActions: 1, MaxAttachments: 0}

	shaped := shapeResponse(resp, caps, slog.Default())

	assert.Len(t, resp.Content.Actions, 2)
	assert.Len(t, shaped.Content.Actions, 1)
	assert.Greater(t, len(resp.Content.Text), 50)
	assert.LessOrEqual(t, len([]rune(shaped.Content.Text)), 50)
}

func TestShapeResponse_MarkdownToPlain(t *testing.T) {
	resp := &CanonicalResponse{
		Content:    ResponseContent{Text: "# Title\n**bold** [x](https://x)"},
		Formatting: Formatting{Mode: FormatMarkdown},
	}
	shaped := shapeResponse(resp, Capabilities{MaxMessageLength: 1000}, slog.Default())

	assert.Equal(t, FormatPlaintext, shaped.Formatting.Mode)
	assert.Equal(t, "Title\nbold x", shaped.Content.Text)
}

func TestShapeResponse_MarkdownToHTML(t *testing.T) {
	resp := &CanonicalResponse{
		Content:    ResponseContent{Text: "**bold**"},
		Formatting: Formatting{Mode: FormatMarkdown},
	}
	caps := Capabilities{MaxMessageLength: 1000, SupportsHTML: true}
	shaped := shapeResponse(resp, caps, slog.Default())

	assert.Equal(t, FormatHTML, shaped.Formatting.Mode)
	assert.Contains(t, shaped.Content.Text, "<strong>bold</strong>")
}

func TestActionRows(t *testing.T) {
	actions := []Action{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}, {ID: "5"}}

	rows := actionRows(actions, 2)
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 2)
	assert.Len(t, rows[2], 1)

	assert.Len(t, actionRows(actions, 0), 2) // defaults to 3 per row
	assert.Empty(t, actionRows(nil, 3))
}
