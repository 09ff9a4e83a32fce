package session

import (
	"context"
	"errors"
	"sync"

	"ivar-voice-assistant/backend/internal/models"
	"ivar-voice-assistant/backend/internal/provider"
	"ivar-voice-assistant/backend/internal/store"
	"ivar-voice-assistant/backend/pkg/logger"
)

// Manager owns the live sessions, keyed by chat id, and the currently
// configured response provider. Sessions for persisted conversations are
// revived on demand.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	provider provider.Provider

	store *store.Store
	log   *logger.Logger
	opts  []Option
}

// NewManager creates a session manager. The supplied options are applied
// to every session it creates.
func NewManager(st *store.Store, prov provider.Provider, log *logger.Logger, opts ...Option) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		provider: prov,
		store:    st,
		log:      log,
		opts:     opts,
	}
}

// AddSessionOptions appends options applied to sessions created from now
// on. Used to wire speech and event delivery once those components exist.
func (m *Manager) AddSessionOptions(opts ...Option) {
	m.mu.Lock()
	m.opts = append(m.opts, opts...)
	m.mu.Unlock()
}

// Provider returns the currently configured response provider
func (m *Manager) Provider() provider.Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.provider
}

// SetProvider swaps the response provider. Turns already in flight finish
// on the old provider; subsequent turns in every session use the new one.
func (m *Manager) SetProvider(prov provider.Provider) {
	m.mu.Lock()
	m.provider = prov
	m.mu.Unlock()
}

// Get returns the live session for chatID, reviving it from storage when
// needed. A chat id with no persisted record starts at the greeting.
func (m *Manager) Get(ctx context.Context, chatID string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[chatID]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	conv, err := m.store.LoadConversation(ctx, chatID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	var seed []models.Message
	if conv != nil {
		seed = conv.Messages
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[chatID]; ok {
		return sess, nil
	}
	sess = New(chatID, seed, m.store, m.Provider, m.log, m.opts...)
	m.sessions[chatID] = sess
	return sess, nil
}

// NewChat creates a session for a brand-new conversation and persists its
// greeting so the chat appears in the index immediately.
func (m *Manager) NewChat(ctx context.Context) *Session {
	sess := New("", nil, m.store, m.Provider, m.log, m.opts...)
	sess.Persist(ctx)

	m.mu.Lock()
	m.sessions[sess.ChatID()] = sess
	m.mu.Unlock()
	return sess
}

// SetVoiceEnabled toggles voice output on every live session and on
// sessions created from now on
func (m *Manager) SetVoiceEnabled(enabled bool) {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		live = append(live, sess)
	}
	m.opts = append(m.opts, WithVoiceEnabled(enabled))
	m.mu.Unlock()

	for _, sess := range live {
		sess.SetVoiceEnabled(enabled)
	}
}

// Drop forgets the live session for chatID. The persisted record is the
// store's concern; callers delete it separately.
func (m *Manager) Drop(chatID string) {
	m.mu.Lock()
	delete(m.sessions, chatID)
	m.mu.Unlock()
}
