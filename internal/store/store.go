package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"ivar-voice-assistant/backend/internal/models"
	"ivar-voice-assistant/backend/pkg/cache"
	"ivar-voice-assistant/backend/pkg/logger"
)

// Namespace is the prefix shared by every key this store writes. The same
// prefix drives enumeration, export, usage reporting and clearing.
const Namespace = "ivar-"

// Storage keys
const (
	KeySettings           = Namespace + "ai-settings"
	KeyChatList           = Namespace + "chat-list"
	KeyPreferences        = Namespace + "user-preferences"
	KeyConversationPrefix = Namespace + "conversation-"
)

// UsageReport is a read-only aggregation over all namespace-prefixed keys
type UsageReport struct {
	TotalSize string         `json:"totalSize"`
	Breakdown map[string]int `json:"breakdown"`
	ItemCount int            `json:"itemCount"`
}

// Store persists conversations, the chat index, provider settings and user
// preferences on top of a KV backend. SaveConversation is the single
// mutation point for conversation data: it writes the message log and then
// recomputes the matching chat index entry.
type Store struct {
	kv    KV
	cache *cache.Cache
	log   *logger.Logger
	now   func() time.Time

	// indexMu serializes the read-modify-write on the chat index.
	// Concurrent saves on different chats are otherwise legal and would
	// interleave, losing entries. Conversation log writes stay lock-free.
	indexMu sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithCache fronts conversation loads with an in-memory cache
func WithCache(c *cache.Cache) Option {
	return func(s *Store) { s.cache = c }
}

// WithClock overrides the time source (used in tests)
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over the given KV backend
func New(kv KV, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		kv:  kv,
		log: log.WithComponent("store"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveConversation writes the conversation's message log and upserts its
// chat index entry. New conversations are inserted at the head of the
// index; existing entries are updated in place without reordering.
func (s *Store) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ChatID == "" {
		return fmt.Errorf("conversation has no chat id")
	}

	data, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	key := KeyConversationPrefix + conv.ChatID
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(key, cloneMessages(conv.Messages))
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	entries, err := s.ListChats(ctx)
	if err != nil {
		return err
	}

	updated := false
	for i := range entries {
		if entries[i].ChatID == conv.ChatID {
			entries[i].Title = conv.Title()
			entries[i].LastMessage = conv.LastMessage()
			entries[i].Timestamp = s.now()
			entries[i].MessageCount = len(conv.Messages)
			updated = true
			break
		}
	}
	if !updated {
		entry := models.ChatIndexEntry{
			ChatID:       conv.ChatID,
			Title:        conv.Title(),
			LastMessage:  conv.LastMessage(),
			Timestamp:    s.now(),
			MessageCount: len(conv.Messages),
		}
		entries = append([]models.ChatIndexEntry{entry}, entries...)
	}

	return s.saveChatList(ctx, entries)
}

// LoadConversation returns the persisted conversation for chatID, or
// ErrNotFound. Malformed persisted data is treated as no prior data.
func (s *Store) LoadConversation(ctx context.Context, chatID string) (*models.Conversation, error) {
	key := KeyConversationPrefix + chatID

	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if messages, ok := v.([]models.Message); ok {
				return &models.Conversation{ChatID: chatID, Messages: cloneMessages(messages)}, nil
			}
		}
	}

	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		s.log.Warn("discarding malformed conversation record", "chat_id", chatID, "error", err.Error())
		return nil, ErrNotFound
	}

	if s.cache != nil {
		s.cache.Set(key, cloneMessages(messages))
	}

	return &models.Conversation{ChatID: chatID, Messages: messages}, nil
}

// ListChats returns the chat index, most recently inserted first, one entry
// per chat id. A missing or malformed index reads as empty.
func (s *Store) ListChats(ctx context.Context) ([]models.ChatIndexEntry, error) {
	raw, err := s.kv.Get(ctx, KeyChatList)
	if err == ErrNotFound {
		return []models.ChatIndexEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []models.ChatIndexEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.log.Warn("discarding malformed chat index", "error", err.Error())
		return []models.ChatIndexEntry{}, nil
	}
	return entries, nil
}

// DeleteConversation removes the message log and its index entry as one
// logical operation.
func (s *Store) DeleteConversation(ctx context.Context, chatID string) error {
	key := KeyConversationPrefix + chatID
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	if s.cache != nil {
		s.cache.Delete(key)
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	entries, err := s.ListChats(ctx)
	if err != nil {
		return err
	}

	filtered := entries[:0]
	for _, e := range entries {
		if e.ChatID != chatID {
			filtered = append(filtered, e)
		}
	}
	return s.saveChatList(ctx, filtered)
}

// SaveSettings persists the provider settings record
func (s *Store) SaveSettings(ctx context.Context, settings models.ProviderSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return s.kv.Set(ctx, KeySettings, string(data))
}

// LoadSettings returns the persisted provider settings, or defaults when
// absent or malformed.
func (s *Store) LoadSettings(ctx context.Context) (models.ProviderSettings, error) {
	raw, err := s.kv.Get(ctx, KeySettings)
	if err == ErrNotFound {
		return models.DefaultProviderSettings(), nil
	}
	if err != nil {
		return models.ProviderSettings{}, err
	}

	var settings models.ProviderSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		s.log.Warn("discarding malformed settings record", "error", err.Error())
		return models.DefaultProviderSettings(), nil
	}
	return settings, nil
}

// SavePreferences persists the user preferences record
func (s *Store) SavePreferences(ctx context.Context, prefs models.UserPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	return s.kv.Set(ctx, KeyPreferences, string(data))
}

// LoadPreferences returns the persisted user preferences, or defaults when
// absent or malformed.
func (s *Store) LoadPreferences(ctx context.Context) (models.UserPreferences, error) {
	raw, err := s.kv.Get(ctx, KeyPreferences)
	if err == ErrNotFound {
		return models.DefaultPreferences(), nil
	}
	if err != nil {
		return models.UserPreferences{}, err
	}

	var prefs models.UserPreferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		s.log.Warn("discarding malformed preferences record", "error", err.Error())
		return models.DefaultPreferences(), nil
	}
	return prefs, nil
}

// ExportAll returns a JSON snapshot of every namespace-prefixed record
func (s *Store) ExportAll(ctx context.Context) ([]byte, error) {
	keys, err := s.kv.Keys(ctx, Namespace)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]string, len(keys))
	for _, key := range keys {
		value, err := s.kv.Get(ctx, key)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		snapshot[key] = value
	}

	return json.MarshalIndent(snapshot, "", "  ")
}

// ImportAll restores records from a snapshot produced by ExportAll.
// Keys outside the namespace are ignored.
func (s *Store) ImportAll(ctx context.Context, data []byte) error {
	var snapshot map[string]string
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}

	for key, value := range snapshot {
		if !strings.HasPrefix(key, Namespace) {
			continue
		}
		if err := s.kv.Set(ctx, key, value); err != nil {
			return err
		}
	}

	if s.cache != nil {
		s.cache.Flush()
	}
	return nil
}

// ClearAll removes every namespace-prefixed key and returns the count removed
func (s *Store) ClearAll(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, Namespace)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		if err := s.kv.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}

	if s.cache != nil {
		s.cache.Flush()
	}
	return removed, nil
}

// Usage reports total stored size and a per-category breakdown, where the
// category is the token following the namespace prefix in each key.
func (s *Store) Usage(ctx context.Context) (UsageReport, error) {
	keys, err := s.kv.Keys(ctx, Namespace)
	if err != nil {
		return UsageReport{}, err
	}

	totalSize := 0
	breakdown := make(map[string]int)
	for _, key := range keys {
		value, err := s.kv.Get(ctx, key)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return UsageReport{}, err
		}

		totalSize += len(value)
		category := strings.SplitN(strings.TrimPrefix(key, Namespace), "-", 2)[0]
		breakdown[category] += len(value)
	}

	return UsageReport{
		TotalSize: fmt.Sprintf("%.2f KB", float64(totalSize)/1024),
		Breakdown: breakdown,
		ItemCount: len(keys),
	}, nil
}

func (s *Store) saveChatList(ctx context.Context, entries []models.ChatIndexEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal chat index: %w", err)
	}
	return s.kv.Set(ctx, KeyChatList, string(data))
}

func cloneMessages(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	copy(out, messages)
	return out
}
