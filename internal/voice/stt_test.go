package voice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTranscriber records the audio it is asked to transcribe
type fakeTranscriber struct {
	text string
	err  error

	mu    sync.Mutex
	audio []byte
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	f.mu.Lock()
	f.audio = append([]byte(nil), audio...)
	f.calls++
	f.mu.Unlock()
	return f.text, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestStreamEngineTranscribesBufferedAudio(t *testing.T) {
	transcriber := &fakeTranscriber{text: "turn on the lights"}
	engine := NewStreamEngine(transcriber)
	rec := &recorder{}

	r := NewRecognizer(engine, rec.callbacks(), testLog())
	require.NoError(t, r.Start(context.Background()))

	engine.Push([]byte("chunk-one"))
	engine.Push([]byte("chunk-two"))
	engine.Stop()
	rec.waitIdle(t, r)

	assert.Equal(t, []string{"turn on the lights"}, rec.transcripts)
	assert.Equal(t, "chunk-onechunk-two", string(transcriber.audio))
}

func TestStreamEngineStopWithoutAudioDeliversNothing(t *testing.T) {
	transcriber := &fakeTranscriber{text: "unused"}
	engine := NewStreamEngine(transcriber)
	rec := &recorder{}

	r := NewRecognizer(engine, rec.callbacks(), testLog())
	require.NoError(t, r.Start(context.Background()))

	engine.Stop()
	rec.waitIdle(t, r)

	assert.Empty(t, rec.transcripts)
	assert.Zero(t, transcriber.callCount())
}

func TestStreamEngineTranscriptionFailureSurfacesError(t *testing.T) {
	transcriber := &fakeTranscriber{err: errors.New("service unavailable")}
	engine := NewStreamEngine(transcriber)
	rec := &recorder{}

	r := NewRecognizer(engine, rec.callbacks(), testLog())
	require.NoError(t, r.Start(context.Background()))

	engine.Push([]byte("audio"))
	engine.Stop()
	rec.waitIdle(t, r)

	assert.Empty(t, rec.transcripts)
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "Speech recognition error")
}

func TestStreamEngineAbortDiscardsBuffer(t *testing.T) {
	transcriber := &fakeTranscriber{text: "unused"}
	engine := NewStreamEngine(transcriber)

	events := make(chan RecognitionEvent, 16)
	require.NoError(t, engine.Start(context.Background(), events))

	engine.Push([]byte("audio"))
	engine.Abort()

	var sawEnd bool
	for ev := range events {
		assert.Empty(t, ev.Transcript)
		if ev.End {
			sawEnd = true
		}
	}
	assert.True(t, sawEnd)
	assert.Zero(t, transcriber.callCount())

	// Pushes after abort are dropped
	engine.Push([]byte("late"))
	assert.Zero(t, transcriber.callCount())
}

func TestStreamEngineRejectsDoubleStart(t *testing.T) {
	engine := NewStreamEngine(&fakeTranscriber{})

	require.NoError(t, engine.Start(context.Background(), make(chan RecognitionEvent, 1)))
	assert.Error(t, engine.Start(context.Background(), make(chan RecognitionEvent, 1)))
}

func TestStreamEngineWithoutTranscriberIsUnsupported(t *testing.T) {
	engine := NewStreamEngine(nil)
	assert.False(t, engine.Supported())

	r := NewRecognizer(engine, RecognizerCallbacks{}, testLog())
	assert.ErrorIs(t, r.Start(context.Background()), ErrUnsupported)
}
