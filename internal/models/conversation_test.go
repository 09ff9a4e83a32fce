package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleFromFirstUserMessage(t *testing.T) {
	conv := &Conversation{
		ChatID: "chat-1",
		Messages: []Message{
			{Text: "Hello! I'm the assistant.", IsUser: false},
			{Text: "what's the weather like today", IsUser: true},
			{Text: "another user message", IsUser: true},
		},
	}

	assert.Equal(t, "what's the weather like today", conv.Title())
}

func TestTitleTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("a", 45)
	conv := &Conversation{
		Messages: []Message{{Text: long, IsUser: true}},
	}

	title := conv.Title()
	assert.Equal(t, strings.Repeat("a", 30)+"...", title)
}

func TestTitleDefaultsWithoutUserMessages(t *testing.T) {
	conv := &Conversation{
		Messages: []Message{{Text: "greeting only", IsUser: false}},
	}
	assert.Equal(t, "New Conversation", conv.Title())

	empty := &Conversation{}
	assert.Equal(t, "New Conversation", empty.Title())
}

func TestLastMessage(t *testing.T) {
	conv := &Conversation{}
	assert.Equal(t, "", conv.LastMessage())

	conv.Messages = append(conv.Messages, Message{Text: "first"}, Message{Text: "second"})
	assert.Equal(t, "second", conv.LastMessage())
}

func TestProviderSettingsValidate(t *testing.T) {
	assert.NoError(t, ProviderSettings{Provider: ProviderLocal}.Validate())
	assert.NoError(t, ProviderSettings{Provider: ProviderOpenAI, APIKey: "k"}.Validate())

	assert.Error(t, ProviderSettings{Provider: ProviderOpenAI}.Validate())
	assert.Error(t, ProviderSettings{Provider: ProviderGoogle}.Validate())
	assert.Error(t, ProviderSettings{Provider: ProviderHuggingFace}.Validate())
	assert.Error(t, ProviderSettings{Provider: "something-else", APIKey: "k"}.Validate())
}
