// ABOUTME: CLI platform bundle for the command-line client transport
// ABOUTME: Plain-text in, plain-text out, no buttons or markup support

package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// cliPayload is the envelope the CLI client posts.
type cliPayload struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// CLIReply is the native response shape for the CLI transport.
type CLIReply struct {
	Text      string `json:"text"`
	RequestID string `json:"request_id"`
}

func cliBundle() *Bundle {
	return &Bundle{
		Platform: PlatformCLI,
		Capabilities: Capabilities{
			MaxMessageLength: 16384,
			MaxAttachments:   0,
			MaxActions:       0,
			ActionsPerRow:    1,
			SupportsMarkdown: false,
			SupportsHTML:     false,
			SupportsButtons:  false,
			RateWindow:       time.Minute,
			RateMax:          120,
		},
		Parse:  parseCLI,
		Format: formatCLI,
		Detect: detectCLI,
	}
}

func parseCLI(raw []byte, sessionID string) (*CanonicalMessage, error) {
	var p cliPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.User == "" {
		return nil, ErrMissingSender
	}
	if p.Text == "" {
		return nil, ErrEmptyContent
	}

	if sessionID == "" {
		sessionID = DeriveSessionID(PlatformCLI, p.User, p.User)
	}

	return &CanonicalMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    p.User,
		Timestamp: time.Now(),
		Content:   Content{Text: p.Text},
		Platform:  PlatformCLI,
		Conversation: Conversation{
			// CLI clients have no chat concept; the user is the conversation.
			ChatID: p.User,
		},
	}, nil
}

func formatCLI(resp *CanonicalResponse, caps Capabilities) (any, error) {
	return &CLIReply{Text: resp.Content.Text, RequestID: resp.RequestID}, nil
}

func detectCLI(raw []byte, headers map[string]string) bool {
	if headers["X-Gateway-Source"] == string(PlatformCLI) {
		return true
	}
	var probe struct {
		User *string `json:"user"`
		Text *string `json:"text"`
	}
	return json.Unmarshal(raw, &probe) == nil && probe.User != nil && probe.Text != nil
}
