// ABOUTME: HTTP REST platform bundle for the generic JSON message endpoint
// ABOUTME: Accepts {user_id, text, ...} payloads and replies with a JSON envelope

package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// restPayload is the request body accepted on the REST endpoint.
type restPayload struct {
	ID        string            `json:"id,omitempty"`
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id,omitempty"`
	ChatID    string            `json:"chat_id,omitempty"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RESTReply is the native response envelope returned to REST clients.
type RESTReply struct {
	ID        string            `json:"id"`
	RequestID string            `json:"request_id"`
	Text      string            `json:"text"`
	Format    FormatMode        `json:"format"`
	Actions   []Action          `json:"actions,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func httpBundle() *Bundle {
	return &Bundle{
		Platform: PlatformHTTP,
		Capabilities: Capabilities{
			MaxMessageLength: 8192,
			MaxAttachments:   20,
			MaxActions:       24,
			ActionsPerRow:    3,
			SupportsMarkdown: true,
			SupportsHTML:     true,
			SupportsButtons:  false,
			RateWindow:       time.Minute,
			RateMax:          60,
		},
		Parse:  parseREST,
		Format: formatREST,
		Detect: detectREST,
	}
}

func parseREST(raw []byte, sessionID string) (*CanonicalMessage, error) {
	var p restPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.UserID == "" {
		return nil, ErrMissingSender
	}
	if p.Text == "" {
		return nil, ErrEmptyContent
	}

	chatID := p.ChatID
	if chatID == "" {
		chatID = p.UserID
	}
	if sessionID == "" {
		sessionID = p.SessionID
	}
	if sessionID == "" {
		sessionID = DeriveSessionID(PlatformHTTP, chatID, p.UserID)
	}

	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}

	return &CanonicalMessage{
		ID:        id,
		SessionID: sessionID,
		UserID:    p.UserID,
		Timestamp: time.Now(),
		Content: Content{
			Text:     p.Text,
			Metadata: p.Metadata,
		},
		Platform: PlatformHTTP,
		PlatformData: map[string]any{
			"chat_id_raw": p.ChatID,
		},
		Conversation: Conversation{ChatID: chatID},
	}, nil
}

func formatREST(resp *CanonicalResponse, caps Capabilities) (any, error) {
	return &RESTReply{
		ID:        resp.ID,
		RequestID: resp.RequestID,
		Text:      resp.Content.Text,
		Format:    resp.Formatting.Mode,
		Actions:   resp.Content.Actions,
		Metadata:  resp.Content.Metadata,
		Timestamp: resp.Timestamp,
	}, nil
}

func detectREST(raw []byte, headers map[string]string) bool {
	var probe struct {
		UserID *string `json:"user_id"`
		Text   *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.UserID != nil && probe.Text != nil {
		return true
	}
	return strings.Contains(strings.ToLower(headers["Content-Type"]), "application/json") &&
		headers["X-Gateway-Source"] == string(PlatformHTTP)
}
