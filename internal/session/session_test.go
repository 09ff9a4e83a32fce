package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ivar-voice-assistant/backend/internal/models"
	"ivar-voice-assistant/backend/internal/provider"
	"ivar-voice-assistant/backend/internal/store"
	"ivar-voice-assistant/backend/pkg/logger"
)

// stubProvider returns a fixed reply, or an error, and can block until
// released to simulate slow provider calls.
type stubProvider struct {
	reply string
	err   error
	gate  chan struct{}

	mu    sync.Mutex
	calls int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) GetResponse(ctx context.Context, message string, history []models.Message) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.gate != nil {
		<-p.gate
	}
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestSession(t *testing.T, prov provider.Provider) (*Session, *store.Store) {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	st := store.New(store.NewMemoryKV(), log)
	sess := New("chat-test", nil, st, func() provider.Provider { return prov }, log)
	return sess, st
}

func TestNewSessionSeedsGreeting(t *testing.T) {
	sess, _ := newTestSession(t, &stubProvider{reply: "ok"})

	messages := sess.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, Greeting, messages[0].Text)
	assert.False(t, messages[0].IsUser)
	assert.Equal(t, StateIdle, sess.State())
}

func TestSubmitAppendsBothSides(t *testing.T) {
	sess, st := newTestSession(t, &stubProvider{reply: "the reply"})

	reply, err := sess.Submit(context.Background(), "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "the reply", reply.Text)
	assert.False(t, reply.IsUser)

	messages := sess.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "hello", messages[1].Text)
	assert.True(t, messages[1].IsUser)
	assert.Equal(t, "the reply", messages[2].Text)
	assert.Equal(t, StateIdle, sess.State())

	// Both sides of the turn are persisted
	conv, err := st.LoadConversation(context.Background(), sess.ChatID())
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 3)
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	prov := &stubProvider{reply: "ok"}
	sess, _ := newTestSession(t, prov)

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := sess.Submit(context.Background(), input)
		assert.ErrorIs(t, err, ErrEmptyInput, "input %q", input)
	}

	assert.Equal(t, 0, prov.callCount())
	assert.Len(t, sess.Messages(), 1)
}

func TestSubmitProviderFailureFallsBack(t *testing.T) {
	sess, _ := newTestSession(t, &stubProvider{err: errors.New("boom")})

	reply, err := sess.Submit(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply.Text)

	messages := sess.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, FallbackReply, messages[2].Text)
	assert.Equal(t, StateIdle, sess.State())
}

func TestSubmitRejectedWhileAwaitingReply(t *testing.T) {
	prov := &stubProvider{reply: "slow reply", gate: make(chan struct{})}
	sess, _ := newTestSession(t, prov)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := sess.Submit(context.Background(), "first")
		assert.NoError(t, err)
	}()

	// Wait for the first turn to reach the provider
	for sess.State() != StateAwaitingReply {
		time.Sleep(time.Millisecond)
	}

	_, err := sess.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(prov.gate)
	<-done

	assert.Equal(t, 1, prov.callCount())
}

func TestNewChatResetsAndPreservesOld(t *testing.T) {
	sess, st := newTestSession(t, &stubProvider{reply: "ok"})
	ctx := context.Background()

	_, err := sess.Submit(ctx, "remember me")
	require.NoError(t, err)
	oldChatID := sess.ChatID()

	newChatID := sess.NewChat(ctx)
	assert.NotEqual(t, oldChatID, newChatID)

	messages := sess.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, Greeting, messages[0].Text)

	// The old conversation is still retrievable
	old, err := st.LoadConversation(ctx, oldChatID)
	require.NoError(t, err)
	assert.Len(t, old.Messages, 3)

	// Both chats are indexed
	chats, err := st.ListChats(ctx)
	require.NoError(t, err)
	assert.Len(t, chats, 2)
}

func TestStaleReplyDroppedAfterChatSwitch(t *testing.T) {
	prov := &stubProvider{reply: "late reply", gate: make(chan struct{})}
	sess, st := newTestSession(t, prov)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := sess.Submit(ctx, "question")
		errCh <- err
	}()

	for sess.State() != StateAwaitingReply {
		time.Sleep(time.Millisecond)
	}
	oldChatID := sess.ChatID()

	// Switch chats while the provider call is in flight
	sess.NewChat(ctx)

	close(prov.gate)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)

	// The new chat holds only the greeting
	messages := sess.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, Greeting, messages[0].Text)

	// The old conversation keeps the user message but never got the reply
	old, err := st.LoadConversation(ctx, oldChatID)
	require.NoError(t, err)
	require.Len(t, old.Messages, 2)
	assert.Equal(t, "question", old.Messages[1].Text)
}

func TestManagerRevivesPersistedConversation(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	st := store.New(store.NewMemoryKV(), log)
	ctx := context.Background()

	conv := &models.Conversation{
		ChatID: "chat-old",
		Messages: []models.Message{
			{ID: "m1", Text: Greeting},
			{ID: "m2", Text: "saved question", IsUser: true},
		},
	}
	require.NoError(t, st.SaveConversation(ctx, conv))

	m := NewManager(st, &stubProvider{reply: "ok"}, log)

	sess, err := m.Get(ctx, "chat-old")
	require.NoError(t, err)
	assert.Len(t, sess.Messages(), 2)

	// Same live session on repeated lookups
	again, err := m.Get(ctx, "chat-old")
	require.NoError(t, err)
	assert.Same(t, sess, again)
}

func TestManagerUnknownChatStartsAtGreeting(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	st := store.New(store.NewMemoryKV(), log)
	m := NewManager(st, &stubProvider{reply: "ok"}, log)

	sess, err := m.Get(context.Background(), "chat-unseen")
	require.NoError(t, err)
	messages := sess.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, Greeting, messages[0].Text)
}

func TestManagerNewChatPersistsGreeting(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	st := store.New(store.NewMemoryKV(), log)
	m := NewManager(st, &stubProvider{reply: "ok"}, log)
	ctx := context.Background()

	sess := m.NewChat(ctx)

	chats, err := st.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, sess.ChatID(), chats[0].ChatID)
	assert.Equal(t, "New Conversation", chats[0].Title)
}

func TestManagerSetProviderAffectsNextTurn(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	st := store.New(store.NewMemoryKV(), log)
	first := &stubProvider{reply: "from first"}
	m := NewManager(st, first, log)
	ctx := context.Background()

	sess := m.NewChat(ctx)

	reply, err := sess.Submit(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, "from first", reply.Text)

	m.SetProvider(&stubProvider{reply: "from second"})

	reply, err = sess.Submit(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, "from second", reply.Text)
}

func TestSessionIDsAreUnique(t *testing.T) {
	sess, _ := newTestSession(t, &stubProvider{reply: "ok"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := sess.Submit(ctx, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	for _, msg := range sess.Messages() {
		assert.False(t, seen[msg.ID], "duplicate message id %s", msg.ID)
		seen[msg.ID] = true
	}
}
