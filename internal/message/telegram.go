// ABOUTME: Telegram platform bundle converting Bot API updates to canonical form
// ABOUTME: Formats canonical responses as SendMessage params with inline keyboards

package message

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
)

func telegramBundle() *Bundle {
	return &Bundle{
		Platform: PlatformTelegram,
		Capabilities: Capabilities{
			MaxMessageLength: 4096,
			MaxAttachments:   10,
			MaxActions:       12,
			ActionsPerRow:    3,
			SupportsMarkdown: true,
			SupportsHTML:     true,
			SupportsButtons:  true,
			RateWindow:       time.Minute,
			RateMax:          30,
		},
		Parse:  parseTelegram,
		Format: formatTelegram,
		Detect: detectTelegram,
	}
}

// parseTelegram converts a raw Bot API update into a canonical message.
func parseTelegram(raw []byte, sessionID string) (*CanonicalMessage, error) {
	var update telego.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	msg := update.Message
	if msg == nil {
		return nil, fmt.Errorf("%w: update carries no message", ErrInvalidPayload)
	}
	if msg.From == nil {
		return nil, ErrMissingSender
	}
	if msg.Text == "" {
		return nil, ErrEmptyContent
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if sessionID == "" {
		sessionID = DeriveSessionID(PlatformTelegram, chatID, userID)
	}

	ts := time.Unix(msg.Date, 0)
	if msg.Date == 0 {
		ts = time.Now()
	}

	return &CanonicalMessage{
		ID:        fmt.Sprintf("tg-%d-%d", update.UpdateID, msg.MessageID),
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: ts,
		Content: Content{
			Text:     msg.Text,
			Metadata: map[string]string{},
		},
		Platform: PlatformTelegram,
		PlatformData: map[string]any{
			"update_id":  update.UpdateID,
			"message_id": msg.MessageID,
			"chat_type":  msg.Chat.Type,
			"is_bot":     msg.From.IsBot,
			"first_name": msg.From.FirstName,
		},
		Conversation: Conversation{ChatID: chatID},
	}, nil
}

// formatTelegram renders a shaped canonical response as SendMessage params.
// The destination chat is carried in the response metadata by the router.
func formatTelegram(resp *CanonicalResponse, caps Capabilities) (any, error) {
	rawChat := resp.Content.Metadata["chat_id"]
	if rawChat == "" {
		return nil, fmt.Errorf("%w: response has no chat_id", ErrInvalidPayload)
	}
	chatID, err := strconv.ParseInt(rawChat, 10, 64)
	if err != nil {
		chatID = SurrogateID(rawChat)
	}

	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   resp.Content.Text,
	}
	switch resp.Formatting.Mode {
	case FormatMarkdown:
		params.ParseMode = telego.ModeMarkdown
	case FormatHTML:
		params.ParseMode = telego.ModeHTML
	}

	if caps.SupportsButtons && len(resp.Content.Actions) > 0 {
		var keyboard [][]telego.InlineKeyboardButton
		for _, row := range actionRows(resp.Content.Actions, resp.Formatting.ActionsPerRow) {
			var buttons []telego.InlineKeyboardButton
			for _, a := range row {
				btn := telego.InlineKeyboardButton{Text: a.Label}
				if a.URL != "" {
					btn.URL = a.URL
				} else {
					btn.CallbackData = callbackData(a)
				}
				buttons = append(buttons, btn)
			}
			keyboard = append(keyboard, buttons)
		}
		params.ReplyMarkup = &telego.InlineKeyboardMarkup{InlineKeyboard: keyboard}
	}

	return params, nil
}

// callbackData prefers the action value, falling back to its id.
func callbackData(a Action) string {
	if a.Value != "" {
		return a.Value
	}
	return a.ID
}

// detectTelegram fingerprints the Bot API update envelope.
func detectTelegram(raw []byte, headers map[string]string) bool {
	var probe struct {
		UpdateID *int            `json:"update_id"`
		Message  json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.UpdateID != nil && len(probe.Message) > 0 {
		return true
	}
	_, ok := headers["X-Telegram-Bot-Api-Secret-Token"]
	return ok
}
