package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ivar-voice-assistant/backend/internal/models"
	"ivar-voice-assistant/backend/internal/provider"
	"ivar-voice-assistant/backend/internal/store"
	"ivar-voice-assistant/backend/internal/voice"
	"ivar-voice-assistant/backend/pkg/logger"
	"ivar-voice-assistant/backend/pkg/observability"
)

// Greeting opens every new conversation
const Greeting = "Hello! I'm IVAR, your AI voice assistant. How can I help you today?"

// FallbackReply is appended in place of a reply when the provider fails
const FallbackReply = "I'm sorry, I encountered an error. Please check your AI settings and try again."

// Sentinel session failures
var (
	// ErrEmptyInput rejects empty or whitespace-only submissions
	ErrEmptyInput = errors.New("empty submission")
	// ErrBusy rejects a submission while a reply is pending
	ErrBusy = errors.New("a reply is already pending")
	// ErrSuperseded reports that the reply arrived after the session
	// switched to another chat and was dropped
	ErrSuperseded = errors.New("reply superseded by chat switch")
)

// State is the session's turn state
type State int

const (
	// StateIdle means no turn is in progress
	StateIdle State = iota
	// StateAwaitingReply means a provider call is in flight
	StateAwaitingReply
)

// Notifier receives session events; the websocket hub implements it to
// feed the presentation layer.
type Notifier interface {
	MessageAppended(chatID string, msg models.Message)
	StateChanged(chatID string, awaitingReply bool)
}

// ProviderFunc returns the currently configured response provider.
// Indirection makes a settings save take effect on the next turn without
// touching live sessions.
type ProviderFunc func() provider.Provider

// Session drives one conversation: it accepts user submissions, dispatches
// them to the response provider, persists every mutation and triggers
// speech playback. One conversation is active per session at a time.
type Session struct {
	mu       sync.Mutex
	chatID   string
	messages []models.Message
	state    State

	store        *store.Store
	providerFn   ProviderFunc
	speech       *voice.Synthesizer
	voiceEnabled bool
	notifier     Notifier
	log          *logger.Logger
	now          func() time.Time
	newID        func() string
}

// Option configures a Session
type Option func(*Session)

// WithSpeech attaches a synthesizer for voice output
func WithSpeech(s *voice.Synthesizer) Option {
	return func(sess *Session) { sess.speech = s }
}

// WithVoiceEnabled sets the initial voice-output flag
func WithVoiceEnabled(enabled bool) Option {
	return func(sess *Session) { sess.voiceEnabled = enabled }
}

// WithNotifier attaches a session event notifier
func WithNotifier(n Notifier) Option {
	return func(sess *Session) { sess.notifier = n }
}

// WithClock overrides the time source (used in tests)
func WithClock(now func() time.Time) Option {
	return func(sess *Session) { sess.now = now }
}

// WithIDGenerator overrides message/chat id generation (used in tests)
func WithIDGenerator(gen func() string) Option {
	return func(sess *Session) { sess.newID = gen }
}

// New creates a session for the given chat id, seeded with the provided
// message log. An empty log is seeded with the greeting; an empty chat id
// gets a fresh one.
func New(chatID string, messages []models.Message, st *store.Store, providerFn ProviderFunc, log *logger.Logger, opts ...Option) *Session {
	s := &Session{
		chatID:       chatID,
		messages:     messages,
		state:        StateIdle,
		store:        st,
		providerFn:   providerFn,
		voiceEnabled: true,
		log:          log.WithComponent("session"),
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chatID == "" {
		s.chatID = "chat-" + s.newID()
	}
	if len(s.messages) == 0 {
		s.messages = []models.Message{s.newMessage(Greeting, false)}
	}
	return s
}

// ChatID returns the active chat id
func (s *Session) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// State returns the current turn state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the active message log
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// VoiceEnabled reports whether replies are vocalized
func (s *Session) VoiceEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceEnabled
}

// SetVoiceEnabled toggles voice output. Disabling it cancels any speech
// playback in progress.
func (s *Session) SetVoiceEnabled(enabled bool) {
	s.mu.Lock()
	s.voiceEnabled = enabled
	speech := s.speech
	s.mu.Unlock()

	if !enabled && speech != nil {
		speech.Cancel()
	}
}

// Submit processes one turn: the user message is appended and persisted,
// the provider is invoked, and its reply (or the fixed fallback on
// failure) is appended, persisted and optionally vocalized. Provider
// failures are logged, never propagated. The returned message is the
// appended assistant message.
func (s *Session) Submit(ctx context.Context, text string) (models.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.Message{}, ErrEmptyInput
	}

	s.mu.Lock()
	if s.state == StateAwaitingReply {
		s.mu.Unlock()
		return models.Message{}, ErrBusy
	}

	originChatID := s.chatID
	history := make([]models.Message, len(s.messages))
	copy(history, s.messages)

	userMsg := s.newMessage(trimmed, true)
	s.messages = append(s.messages, userMsg)
	s.state = StateAwaitingReply
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notifyMessage(originChatID, userMsg)
	s.notifyState(originChatID, true)

	prov := s.providerFn()
	reply, err := prov.GetResponse(ctx, trimmed, history)
	if err != nil {
		s.log.LogError(err, "provider call failed", "provider", prov.Name(), "chat_id", originChatID)
		observability.ProviderErrorsTotal.WithLabelValues(prov.Name()).Inc()
		reply = FallbackReply
	}

	s.mu.Lock()
	if s.chatID != originChatID {
		// The user switched chats while the provider call was in flight;
		// the reply belongs to the old conversation and is dropped.
		s.mu.Unlock()
		s.log.Warn("dropping stale reply", "chat_id", originChatID, "active_chat_id", s.ChatID())
		observability.StaleRepliesTotal.Inc()
		return models.Message{}, ErrSuperseded
	}

	assistantMsg := s.newMessage(reply, false)
	s.messages = append(s.messages, assistantMsg)
	s.state = StateIdle
	s.persistLocked(ctx)
	speak := s.voiceEnabled && s.speech != nil
	speech := s.speech
	s.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = "fallback"
	}
	observability.TurnsTotal.WithLabelValues(prov.Name(), outcome).Inc()

	s.notifyMessage(originChatID, assistantMsg)
	s.notifyState(originChatID, false)

	if speak {
		speech.Speak(reply)
	}

	return assistantMsg, nil
}

// NewChat switches the session to a fresh conversation: a new unique chat
// id, a log reset to the greeting, and any speech playback cancelled. The
// previous conversation's persisted record is left untouched.
func (s *Session) NewChat(ctx context.Context) string {
	s.mu.Lock()
	s.chatID = "chat-" + s.newID()
	s.messages = []models.Message{s.newMessage(Greeting, false)}
	s.state = StateIdle
	s.persistLocked(ctx)
	chatID := s.chatID
	speech := s.speech
	s.mu.Unlock()

	if speech != nil {
		speech.Cancel()
	}

	s.log.Info("started new chat", "chat_id", chatID)
	return chatID
}

// Persist writes the current message log to storage
func (s *Session) Persist(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked(ctx)
}

// persistLocked writes the current log; storage failures degrade to a log
// line, they never abort the turn. Callers hold s.mu.
func (s *Session) persistLocked(ctx context.Context) {
	conv := &models.Conversation{ChatID: s.chatID, Messages: s.messages}
	if err := s.store.SaveConversation(ctx, conv); err != nil {
		s.log.LogError(err, "failed to persist conversation", "chat_id", s.chatID)
	}
}

func (s *Session) newMessage(text string, isUser bool) models.Message {
	return models.Message{
		ID:        s.newID(),
		Text:      text,
		IsUser:    isUser,
		Timestamp: s.now(),
	}
}

func (s *Session) notifyMessage(chatID string, msg models.Message) {
	if s.notifier != nil {
		s.notifier.MessageAppended(chatID, msg)
	}
}

func (s *Session) notifyState(chatID string, awaiting bool) {
	if s.notifier != nil {
		s.notifier.StateChanged(chatID, awaiting)
	}
}
