package models

import (
	"time"
)

// Message represents a single chat message. Messages are immutable once
// created; a conversation log is only ever extended.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is one chat thread identified by a chat id, holding an
// ordered message log.
type Conversation struct {
	ChatID   string    `json:"chatId"`
	Messages []Message `json:"messages"`
}

// LastMessage returns the text of the most recent message, or "" for an
// empty log.
func (c *Conversation) LastMessage() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Text
}

// Title derives a display title from the first user message, truncated to
// 30 runes.
func (c *Conversation) Title() string {
	for _, m := range c.Messages {
		if m.IsUser {
			runes := []rune(m.Text)
			if len(runes) > 30 {
				return string(runes[:30]) + "..."
			}
			return m.Text
		}
	}
	return "New Conversation"
}

// ChatIndexEntry is a summary row per conversation, used for listing
// without loading full logs. It is recomputed on every save of the
// conversation it summarizes.
type ChatIndexEntry struct {
	ChatID       string    `json:"id"`
	Title        string    `json:"title"`
	LastMessage  string    `json:"lastMessage"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"messageCount"`
}
