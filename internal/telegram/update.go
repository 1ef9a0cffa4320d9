package telegram

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/suPer8Hu/remote-control/internal/bot"
)

type Update struct {
	UpdateID int64        `json:"update_id"`
	Message  *ChatMessage `json:"message,omitempty"`
}

type ChatMessage struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Inbound converts a text message into a bot.Message. Other updates (stickers, joins, bot
// senders) report false. A message without a sender keeps SenderID 0 and is left to the
// auth gate.
func (u Update) Inbound() (bot.Message, bool) {
	m := u.Message
	if m == nil || m.Text == "" || (m.From != nil && m.From.IsBot) {
		return bot.Message{}, false
	}
	var (
		senderID int64
		name     string
	)
	if m.From != nil {
		senderID = m.From.ID
		name = m.From.Username
		if name == "" {
			name = m.From.FirstName
		}
	}
	received := time.Now().UTC()
	if m.Date > 0 {
		received = time.Unix(m.Date, 0).UTC()
	}
	return bot.Message{
		ID:         ulid.Make().String(),
		UpdateID:   u.UpdateID,
		ChatID:     m.Chat.ID,
		SenderID:   senderID,
		SenderName: name,
		Text:       m.Text,
		ReceivedAt: received,
	}, true
}
