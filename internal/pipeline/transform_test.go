// ABOUTME: Tests for the content normalization stage
// ABOUTME: Includes the normalization idempotence property

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"crlf", "a\r\nb", "a\nb"},
		{"bare cr", "a\rb", "a\nb"},
		{"space runs", "a   b\t\tc", "a b c"},
		{"trailing spaces before newline", "a  \nb", "a\nb"},
		{"blank line runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"surrounding whitespace", "  a  ", "a"},
		{"empty", "", ""},
		{"only whitespace", " \r\n\t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"a \n b",
		"x\r\n\r\n\r\ny",
		"  mixed \t content\rwith\n\n\n\nnoise  ",
		"already clean",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestTransformStage_AttachesMetadata(t *testing.T) {
	registry := message.NewRegistry(nil)
	s := NewTransformStage(40, registry, nil)

	req := testRequest()
	req.Content = "see https://example.com  for details"
	out, rejection := s.Process(context.Background(), req)

	require.Nil(t, rejection)
	assert.Equal(t, "see https://example.com for details", out.Content)
	assert.Equal(t, "true", out.Metadata["normalized"])
	assert.Equal(t, "35", out.Metadata["content_length"])
	assert.Equal(t, "true", out.Metadata["contains_url"])
	assert.Equal(t, "8192", out.Metadata["platform_max_length"])
	assert.Equal(t, "false", out.Metadata["platform_supports_buttons"])
}

func TestTransformStage_NilCapabilityTable(t *testing.T) {
	s := NewTransformStage(40, nil, nil)

	out, rejection := s.Process(context.Background(), testRequest())
	require.Nil(t, rejection)
	assert.NotContains(t, out.Metadata, "platform_max_length")
}

func TestTransformStage_ReplacesNotMutates(t *testing.T) {
	s := NewTransformStage(40, nil, nil)

	req := testRequest()
	req.Content = "a   b"
	out, rejection := s.Process(context.Background(), req)

	require.Nil(t, rejection)
	assert.Equal(t, "a   b", req.Content)
	assert.Nil(t, req.Metadata)
	assert.Equal(t, "a b", out.Content)
}
