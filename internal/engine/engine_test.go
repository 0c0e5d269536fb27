// ABOUTME: Tests for canonical-to-native update construction
// ABOUTME: Covers surrogate reduction and chat-native passthrough

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

func TestBuildUpdate_ChatNativePassthrough(t *testing.T) {
	msg := &message.CanonicalMessage{
		ID:        "tg-1-1",
		UserID:    "7",
		Timestamp: time.Unix(1700000000, 0),
		Content:   message.Content{Text: "hello"},
		Platform:  message.PlatformTelegram,
		PlatformData: map[string]any{
			"update_id":  1,
			"message_id": 1,
			"chat_type":  "private",
			"is_bot":     false,
			"first_name": "A",
		},
		Conversation: message.Conversation{ChatID: "42"},
	}

	update := BuildUpdate(msg)

	assert.Equal(t, 1, update.UpdateID)
	require.NotNil(t, update.Message)
	assert.Equal(t, 1, update.Message.MessageID)
	assert.Equal(t, int64(42), update.Message.Chat.ID)
	assert.Equal(t, "private", update.Message.Chat.Type)
	assert.Equal(t, "hello", update.Message.Text)
	assert.Equal(t, int64(1700000000), update.Message.Date)
	require.NotNil(t, update.Message.From)
	assert.Equal(t, int64(7), update.Message.From.ID)
	assert.Equal(t, "A", update.Message.From.FirstName)
	assert.False(t, update.Message.From.IsBot)
}

func TestBuildUpdate_NonNumericIDsGetSurrogates(t *testing.T) {
	msg := &message.CanonicalMessage{
		ID:           "req-abc",
		UserID:       "alice",
		Timestamp:    time.Now(),
		Content:      message.Content{Text: "hi"},
		Platform:     message.PlatformHTTP,
		Conversation: message.Conversation{ChatID: "alice"},
	}

	update := BuildUpdate(msg)

	require.NotNil(t, update.Message)
	assert.Equal(t, message.SurrogateID("alice"), update.Message.Chat.ID)
	assert.Equal(t, message.SurrogateID("alice"), update.Message.From.ID)
	assert.Equal(t, "alice", update.Message.From.FirstName)
	assert.Equal(t, "private", update.Message.Chat.Type)
	assert.GreaterOrEqual(t, update.UpdateID, 0)

	// The same message always maps to the same update identifiers.
	again := BuildUpdate(msg)
	assert.Equal(t, update.UpdateID, again.UpdateID)
	assert.Equal(t, update.Message.Chat.ID, again.Message.Chat.ID)
}

func TestBuildUpdate_ZeroTimestampDefaultsToNow(t *testing.T) {
	msg := &message.CanonicalMessage{
		ID:           "req-1",
		UserID:       "alice",
		Content:      message.Content{Text: "hi"},
		Platform:     message.PlatformCLI,
		Conversation: message.Conversation{ChatID: "alice"},
	}

	before := time.Now().Unix()
	update := BuildUpdate(msg)
	after := time.Now().Unix()

	assert.GreaterOrEqual(t, update.Message.Date, before)
	assert.LessOrEqual(t, update.Message.Date, after)
}
