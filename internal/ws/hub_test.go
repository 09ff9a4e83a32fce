package ws

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ivar-voice-assistant/backend/internal/provider"
	"ivar-voice-assistant/backend/internal/session"
	"ivar-voice-assistant/backend/internal/store"
	"ivar-voice-assistant/backend/pkg/logger"
)

func testLog() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func newTestHub(t *testing.T) (*Hub, *session.Manager) {
	t.Helper()
	st := store.New(store.NewMemoryKV(), testLog())
	sessions := session.NewManager(st, provider.NewLocal(), testLog())
	hub := NewHub(sessions, testLog())
	go hub.Run()
	return hub, sessions
}

// gatedTranscriber blocks until released, so the test controls when the
// transcript lands
type gatedTranscriber struct {
	text string
	gate chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *gatedTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	select {
	case <-g.gate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.text, nil
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	c := &Client{ID: "c1", Send: make(chan []byte, 4), log: testLog()}

	c.closeSend()

	assert.NotPanics(t, func() {
		c.sendMessage("transcript", map[string]string{"text": "hello"})
		c.sendErrorMessage("too late")
	})
	assert.False(t, c.trySend([]byte("frame")))

	// Closing again is a no-op
	assert.NotPanics(t, c.closeSend)
}

func TestTrySendDropsWhenBufferFull(t *testing.T) {
	c := &Client{ID: "c1", Send: make(chan []byte, 1), log: testLog()}

	assert.True(t, c.trySend([]byte("first")))
	assert.False(t, c.trySend([]byte("second")))
}

func TestTranscriptAfterDisconnectStillLandsWithoutPanic(t *testing.T) {
	hub, sessions := newTestHub(t)
	transcriber := &gatedTranscriber{text: "turn on the lights", gate: make(chan struct{})}
	hub.SetTranscriber(transcriber)

	ctx := context.Background()
	chatID := sessions.NewChat(ctx).ChatID()

	c := &Client{ID: "c1", Send: make(chan []byte, 16), Hub: hub, log: testLog()}

	c.handleVoiceMessage(Message{Type: "voice_start", Content: map[string]interface{}{"chat_id": chatID}})
	c.handleVoiceMessage(Message{Type: "voice_data", Content: map[string]interface{}{
		"data": base64.StdEncoding.EncodeToString([]byte("audio")),
	}})
	c.handleVoiceMessage(Message{Type: "voice_end"})

	// The peer drops while transcription is still in flight
	c.stopVoiceCapture()
	c.closeSend()
	close(transcriber.gate)

	// The transcript is submitted as a turn; the client frame is dropped
	sess, err := sessions.Get(ctx, chatID)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for len(sess.Messages()) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("transcript turn never landed")
		}
		time.Sleep(time.Millisecond)
	}

	messages := sess.Messages()
	assert.Equal(t, "turn on the lights", messages[1].Text)
	assert.True(t, messages[1].IsUser)
	assert.False(t, messages[2].IsUser)
}

func TestVoiceStartWithoutTranscriberReportsError(t *testing.T) {
	hub, _ := newTestHub(t)

	c := &Client{ID: "c1", Send: make(chan []byte, 4), Hub: hub, log: testLog()}
	c.handleVoiceMessage(Message{Type: "voice_start", Content: map[string]interface{}{}})

	select {
	case frame := <-c.Send:
		assert.Contains(t, string(frame), "Voice capture is not configured")
	default:
		t.Fatal("expected an error frame")
	}
}
