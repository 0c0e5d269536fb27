// ABOUTME: Interface to the external conversational-processing engine
// ABOUTME: Builds the engine's native update shape from canonical messages

package engine

import (
	"context"
	"time"

	"github.com/mymmrac/telego"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

// Result is what the engine returns for one handled update.
type Result struct {
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence,omitempty"`
	ToolsUsed  []string          `json:"tools_used,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Capability describes one engine feature advertised to clients.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Engine is the external conversational-processing dependency. Intent
// analysis, decision-making, tool execution and response generation all live
// behind it; this gateway only dispatches and shields itself from failures.
type Engine interface {
	// Handle processes one native update and returns the engine's result.
	Handle(ctx context.Context, update *telego.Update) (*Result, error)

	// ListCapabilities returns the engine's advertised capabilities.
	ListCapabilities(ctx context.Context) ([]Capability, error)
}

// BuildUpdate converts a canonical message into the engine's native update
// shape. The engine speaks the chat platform's update dialect for every
// origin; non-numeric identifiers from non-chat transports are reduced to
// deterministic numeric surrogates.
func BuildUpdate(msg *message.CanonicalMessage) *telego.Update {
	chatID := message.SurrogateID(msg.Conversation.ChatID)
	userID := message.SurrogateID(msg.UserID)

	updateID := int(message.SurrogateID(msg.ID) % (1 << 31))
	messageID := updateID
	isBot := false
	firstName := msg.UserID
	chatType := "private"

	// Chat-native requests carry their original envelope values through.
	if v, ok := msg.PlatformData["update_id"].(int); ok {
		updateID = v
	}
	if v, ok := msg.PlatformData["message_id"].(int); ok {
		messageID = v
	}
	if v, ok := msg.PlatformData["is_bot"].(bool); ok {
		isBot = v
	}
	if v, ok := msg.PlatformData["first_name"].(string); ok && v != "" {
		firstName = v
	}
	if v, ok := msg.PlatformData["chat_type"].(string); ok && v != "" {
		chatType = v
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &telego.Update{
		UpdateID: updateID,
		Message: &telego.Message{
			MessageID: messageID,
			Date:      ts.Unix(),
			Text:      msg.Content.Text,
			Chat:      telego.Chat{ID: chatID, Type: chatType},
			From: &telego.User{
				ID:        userID,
				IsBot:     isBot,
				FirstName: firstName,
			},
		},
	}
}
