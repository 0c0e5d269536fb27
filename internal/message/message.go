// ABOUTME: Canonical message and response types shared by every transport
// ABOUTME: Platform-independent shapes that converters translate to and from

package message

import (
	"time"
)

// Platform identifies the transport a request arrived on. It is set once at
// ingress and carried through the whole pipeline, never re-derived downstream.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformHTTP     Platform = "http"
	PlatformCLI      Platform = "cli"
)

// Attachment is a reference to a non-text payload carried with a message.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Action is an interactive affordance offered with a response, rendered as a
// button on platforms that support them and as a numbered hint elsewhere.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Conversation locates a message within its originating conversation.
type Conversation struct {
	ChatID       string `json:"chat_id"`
	ThreadID     string `json:"thread_id,omitempty"`
	MessageCount int    `json:"message_count,omitempty"`
}

// Content holds the textual body of a canonical message.
type Content struct {
	Text        string            `json:"text"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CanonicalMessage is the platform-independent representation of one inbound
// request. Converters produce it from raw transport payloads; the router and
// everything behind it only ever sees this shape.
type CanonicalMessage struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Content      Content        `json:"content"`
	Platform     Platform       `json:"platform"`
	PlatformData map[string]any `json:"platform_data,omitempty"`
	Conversation Conversation   `json:"conversation"`
}

// FormatMode selects the markup dialect a response body is written in.
type FormatMode string

const (
	FormatMarkdown  FormatMode = "markdown"
	FormatHTML      FormatMode = "html"
	FormatPlaintext FormatMode = "plaintext"
)

// Formatting carries rendering hints for the outbound formatter.
type Formatting struct {
	Mode          FormatMode `json:"mode"`
	ActionsPerRow int        `json:"actions_per_row,omitempty"`
}

// ResponseContent holds the body of a canonical response.
type ResponseContent struct {
	Text        string            `json:"text"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Actions     []Action          `json:"actions,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ProcessingStats records what it cost to produce a response.
type ProcessingStats struct {
	Latency    time.Duration `json:"latency"`
	Confidence float64       `json:"confidence,omitempty"`
	ToolsUsed  []string      `json:"tools_used,omitempty"`
}

// CanonicalResponse is the platform-independent representation of one outbound
// reply, produced by the router and handed to a converter for delivery.
type CanonicalResponse struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Content    ResponseContent `json:"content"`
	Formatting Formatting      `json:"formatting"`
	Stats      ProcessingStats `json:"stats"`
}

// Capabilities is the static per-platform table of delivery constraints. The
// pipeline reads it for defaults and the formatter for truncation and
// feature degradation.
type Capabilities struct {
	MaxMessageLength int
	MaxAttachments   int
	MaxActions       int
	ActionsPerRow    int
	SupportsMarkdown bool
	SupportsHTML     bool
	SupportsButtons  bool

	// Default admission limits for the platform, used when no explicit
	// per-source configuration is provided.
	RateWindow time.Duration
	RateMax    int
}
