package bot

import (
	"context"
	"strings"
	"time"
)

// Message is one inbound chat message, independent of the transport it arrived on.
type Message struct {
	ID         string    `json:"id"`
	UpdateID   int64     `json:"update_id,omitempty"`
	ChatID     int64     `json:"chat_id"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Command splits "/name@bot args" into ("/name", "args"). Non-command text yields "".
func (m Message) Command() (name, args string) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	name, args, _ = strings.Cut(text, " ")
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return strings.ToLower(name), strings.TrimSpace(args)
}

type ParseMode string

const (
	PlainText ParseMode = ""
	Markdown  ParseMode = "Markdown"
)

// Replier delivers outbound text to a chat.
type Replier interface {
	SendMessage(ctx context.Context, chatID int64, text string, mode ParseMode) error
}
