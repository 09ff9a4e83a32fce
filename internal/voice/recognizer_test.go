package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ivar-voice-assistant/backend/pkg/logger"
)

// scriptedEngine replays a fixed list of events when started
type scriptedEngine struct {
	supported bool
	events    []RecognitionEvent

	mu      sync.Mutex
	started int
	aborted int
}

func (e *scriptedEngine) Supported() bool { return e.supported }

func (e *scriptedEngine) Start(ctx context.Context, events chan<- RecognitionEvent) error {
	e.mu.Lock()
	e.started++
	script := e.events
	e.mu.Unlock()

	go func() {
		defer close(events)
		for _, ev := range script {
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (e *scriptedEngine) Stop() {}

func (e *scriptedEngine) Abort() {
	e.mu.Lock()
	e.aborted++
	e.mu.Unlock()
}

func (e *scriptedEngine) startCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

type recorder struct {
	mu          sync.Mutex
	transcripts []string
	errors      []string
	states      []bool
}

func (r *recorder) callbacks() RecognizerCallbacks {
	return RecognizerCallbacks{
		OnTranscript: func(t string) {
			r.mu.Lock()
			r.transcripts = append(r.transcripts, t)
			r.mu.Unlock()
		},
		OnError: func(msg string) {
			r.mu.Lock()
			r.errors = append(r.errors, msg)
			r.mu.Unlock()
		},
		OnStateChange: func(listening bool) {
			r.mu.Lock()
			r.states = append(r.states, listening)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) waitIdle(t *testing.T, rec *Recognizer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for rec.IsListening() {
		if time.Now().After(deadline) {
			t.Fatal("recognizer did not stop listening")
		}
		time.Sleep(time.Millisecond)
	}
	// Give callbacks a moment to land
	time.Sleep(10 * time.Millisecond)
}

func testLog() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func TestRecognizerUnsupported(t *testing.T) {
	rec := NewRecognizer(nil, RecognizerCallbacks{}, testLog())

	assert.False(t, rec.Supported())
	assert.ErrorIs(t, rec.Start(context.Background()), ErrUnsupported)

	// Stop without capability is a no-op
	rec.Stop()
	assert.False(t, rec.IsListening())
}

func TestRecognizerDeliversFinalTranscriptOnce(t *testing.T) {
	engine := &scriptedEngine{supported: true, events: []RecognitionEvent{
		{Transcript: "inter", IsFinal: false},
		{Transcript: "what time is it", IsFinal: true},
		{Transcript: "trailing echo", IsFinal: true},
	}}
	r := &recorder{}
	rec := NewRecognizer(engine, r.callbacks(), testLog())

	require.NoError(t, rec.Start(context.Background()))
	r.waitIdle(t, rec)

	require.Len(t, r.transcripts, 1)
	assert.Equal(t, "what time is it", r.transcripts[0])
	assert.Empty(t, r.errors)
	assert.Equal(t, []bool{true, false}, r.states)
}

func TestRecognizerEndWithoutFinalDeliversNothing(t *testing.T) {
	engine := &scriptedEngine{supported: true, events: []RecognitionEvent{
		{Transcript: "interim only", IsFinal: false},
		{End: true},
	}}
	r := &recorder{}
	rec := NewRecognizer(engine, r.callbacks(), testLog())

	require.NoError(t, rec.Start(context.Background()))
	r.waitIdle(t, rec)

	assert.Empty(t, r.transcripts)
	assert.Empty(t, r.errors)
}

func TestRecognizerReportsEngineError(t *testing.T) {
	engine := &scriptedEngine{supported: true, events: []RecognitionEvent{
		{Err: errors.New("no-speech")},
	}}
	r := &recorder{}
	rec := NewRecognizer(engine, r.callbacks(), testLog())

	require.NoError(t, rec.Start(context.Background()))
	r.waitIdle(t, rec)

	assert.Empty(t, r.transcripts)
	require.Len(t, r.errors, 1)
	assert.Contains(t, r.errors[0], "Speech recognition error")
	assert.Contains(t, r.errors[0], "no-speech")
}

func TestRecognizerStartWhileListeningIsNoOp(t *testing.T) {
	block := make(chan struct{})
	engine := &blockingEngine{release: block}
	rec := NewRecognizer(engine, RecognizerCallbacks{}, testLog())

	require.NoError(t, rec.Start(context.Background()))
	assert.True(t, rec.IsListening())

	// Second start must not open a second capture session
	require.NoError(t, rec.Start(context.Background()))
	assert.Equal(t, 1, engine.startCount())

	close(block)
}

// blockingEngine holds the event stream open until released
type blockingEngine struct {
	release <-chan struct{}

	mu      sync.Mutex
	started int
}

func (e *blockingEngine) Supported() bool { return true }

func (e *blockingEngine) Start(ctx context.Context, events chan<- RecognitionEvent) error {
	e.mu.Lock()
	e.started++
	e.mu.Unlock()

	go func() {
		defer close(events)
		select {
		case <-e.release:
		case <-ctx.Done():
		}
	}()
	return nil
}

func (e *blockingEngine) Stop()  {}
func (e *blockingEngine) Abort() {}

func (e *blockingEngine) startCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}
