package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ivar-voice-assistant/backend/internal/models"
	"ivar-voice-assistant/backend/pkg/logger"
)

func newTestStore(t *testing.T) (*Store, *MemoryKV) {
	t.Helper()
	kv := NewMemoryKV()
	log := logger.New(logger.Config{Level: "error"})
	return New(kv, log), kv
}

func makeConversation(chatID string, texts ...string) *models.Conversation {
	conv := &models.Conversation{ChatID: chatID}
	for i, text := range texts {
		conv.Messages = append(conv.Messages, models.Message{
			ID:        chatID + "-" + text,
			Text:      text,
			IsUser:    i%2 == 1,
			Timestamp: time.Now(),
		})
	}
	return conv
}

func TestSaveAndLoadConversation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	conv := makeConversation("chat-1", "Hello there", "Hi")
	require.NoError(t, s.SaveConversation(ctx, conv))

	loaded, err := s.LoadConversation(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", loaded.ChatID)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "Hello there", loaded.Messages[0].Text)
	assert.Equal(t, "Hi", loaded.Messages[1].Text)
}

func TestLoadConversationMissing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.LoadConversation(context.Background(), "chat-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadConversationMalformed(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, KeyConversationPrefix+"chat-bad", "{not json"))

	_, err := s.LoadConversation(ctx, "chat-bad")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveConversationRequiresChatID(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.SaveConversation(context.Background(), &models.Conversation{})
	assert.Error(t, err)
}

func TestChatIndexNoDuplicates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	conv := makeConversation("chat-1", "greeting", "first")
	require.NoError(t, s.SaveConversation(ctx, conv))

	conv.Messages = append(conv.Messages, models.Message{ID: "m3", Text: "reply"})
	require.NoError(t, s.SaveConversation(ctx, conv))
	require.NoError(t, s.SaveConversation(ctx, conv))

	chats, err := s.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "chat-1", chats[0].ChatID)
	assert.Equal(t, 3, chats[0].MessageCount)
	assert.Equal(t, "reply", chats[0].LastMessage)
}

func TestChatIndexNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConversation(ctx, makeConversation("chat-1", "greeting", "one")))
	require.NoError(t, s.SaveConversation(ctx, makeConversation("chat-2", "greeting", "two")))

	chats, err := s.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "chat-2", chats[0].ChatID)
	assert.Equal(t, "chat-1", chats[1].ChatID)
}

func TestUpdateDoesNotReorderIndex(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConversation(ctx, makeConversation("chat-1", "greeting", "one")))
	require.NoError(t, s.SaveConversation(ctx, makeConversation("chat-2", "greeting", "two")))

	// Touch the older chat again; its position must not change
	require.NoError(t, s.SaveConversation(ctx, makeConversation("chat-1", "greeting", "one", "more")))

	chats, err := s.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "chat-2", chats[0].ChatID)
	assert.Equal(t, "chat-1", chats[1].ChatID)
}

func TestDeleteConversation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConversation(ctx, makeConversation("chat-1", "greeting", "one")))
	require.NoError(t, s.SaveConversation(ctx, makeConversation("chat-2", "greeting", "two")))

	require.NoError(t, s.DeleteConversation(ctx, "chat-1"))

	_, err := s.LoadConversation(ctx, "chat-1")
	assert.ErrorIs(t, err, ErrNotFound)

	chats, err := s.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "chat-2", chats[0].ChatID)
}

func TestDeleteConversationAbsentIsNoError(t *testing.T) {
	s, _ := newTestStore(t)

	assert.NoError(t, s.DeleteConversation(context.Background(), "chat-missing"))
}

func TestSettingsRoundTripAndDefaults(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	settings, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderLocal, settings.Provider)

	saved := models.ProviderSettings{Provider: models.ProviderOpenAI, APIKey: "sk-test"}
	require.NoError(t, s.SaveSettings(ctx, saved))

	settings, err = s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, settings)

	// Malformed record reads as defaults
	require.NoError(t, kv.Set(ctx, KeySettings, "!!"))
	settings, err = s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderLocal, settings.Provider)
}

func TestPreferencesRoundTripAndDefaults(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	prefs, err := s.LoadPreferences(ctx)
	require.NoError(t, err)
	assert.True(t, prefs.VoiceEnabled)
	assert.Equal(t, "dark", prefs.Theme)
	assert.InDelta(t, 0.9, prefs.SpeechRate, 0.001)

	prefs.VoiceEnabled = false
	prefs.Theme = "light"
	require.NoError(t, s.SavePreferences(ctx, prefs))

	loaded, err := s.LoadPreferences(ctx)
	require.NoError(t, err)
	assert.False(t, loaded.VoiceEnabled)
	assert.Equal(t, "light", loaded.Theme)
}

func TestExportImportRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConversation(ctx, makeConversation("chat-1", "greeting", "hello")))
	require.NoError(t, s.SaveSettings(ctx, models.ProviderSettings{Provider: models.ProviderGoogle, APIKey: "k"}))

	data, err := s.ExportAll(ctx)
	require.NoError(t, err)

	fresh, _ := newTestStore(t)
	require.NoError(t, fresh.ImportAll(ctx, data))

	loaded, err := fresh.LoadConversation(ctx, "chat-1")
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 2)

	settings, err := fresh.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGoogle, settings.Provider)
}

func TestImportIgnoresForeignKeys(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	doc := `{"other-app-data": "x", "` + KeySettings + `": "{\"provider\":\"local\"}"}`
	require.NoError(t, s.ImportAll(ctx, []byte(doc)))

	_, err := kv.Get(ctx, "other-app-data")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = kv.Get(ctx, KeySettings)
	assert.NoError(t, err)
}

func TestClearAllCountsAndEmpties(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConversation(ctx, makeConversation("chat-1", "greeting", "one")))
	require.NoError(t, s.SaveSettings(ctx, models.ProviderSettings{Provider: models.ProviderLocal}))

	// conversation + chat index + settings
	removed, err := s.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	chats, err := s.ListChats(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestUsageBreakdown(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConversation(ctx, makeConversation("chat-1", "greeting", "one")))
	require.NoError(t, s.SaveSettings(ctx, models.ProviderSettings{Provider: models.ProviderLocal}))

	report, err := s.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.ItemCount)
	assert.Contains(t, report.Breakdown, "conversation")
	assert.Contains(t, report.Breakdown, "ai")
	assert.Contains(t, report.Breakdown, "chat")
	assert.Contains(t, report.TotalSize, "KB")
}

// slowKV simulates backend read latency so concurrent index updates overlap
type slowKV struct {
	KV
	delay time.Duration
}

func (s slowKV) Get(ctx context.Context, key string) (string, error) {
	time.Sleep(s.delay)
	return s.KV.Get(ctx, key)
}

func TestConcurrentSavesKeepAllIndexEntries(t *testing.T) {
	kv := slowKV{KV: NewMemoryKV(), delay: 2 * time.Millisecond}
	s := New(kv, logger.New(logger.Config{Level: "error"}))
	ctx := context.Background()

	chatIDs := []string{"chat-a", "chat-b", "chat-c", "chat-d"}
	var wg sync.WaitGroup
	for _, chatID := range chatIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, s.SaveConversation(ctx, makeConversation(id, "hello", "hi")))
		}(chatID)
	}
	wg.Wait()

	entries, err := s.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, entries, len(chatIDs))

	seen := make(map[string]bool)
	for _, e := range entries {
		seen[e.ChatID] = true
		assert.Equal(t, 2, e.MessageCount)
	}
	for _, chatID := range chatIDs {
		assert.True(t, seen[chatID], chatID)
	}
}

func TestConcurrentSaveAndDelete(t *testing.T) {
	kv := slowKV{KV: NewMemoryKV(), delay: 2 * time.Millisecond}
	s := New(kv, logger.New(logger.Config{Level: "error"}))
	ctx := context.Background()

	require.NoError(t, s.SaveConversation(ctx, makeConversation("chat-old", "bye")))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.SaveConversation(ctx, makeConversation("chat-new", "hello", "hi")))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, s.DeleteConversation(ctx, "chat-old"))
	}()
	wg.Wait()

	entries, err := s.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "chat-new", entries[0].ChatID)
}
