package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ivar-voice-assistant/backend/pkg/logger"
)

// ErrUnsupported is returned when the environment provides no speech
// recognition capability. All start/stop operations are no-ops in that case.
var ErrUnsupported = errors.New("speech recognition is not supported in this environment")

// RecognitionEvent is one event emitted by a recognition engine
type RecognitionEvent struct {
	// Transcript carries a recognized segment
	Transcript string
	// IsFinal marks the segment as finalized; interim segments are
	// suppressed from callers
	IsFinal bool
	// End marks the end of the capture session
	End bool
	// Err carries an engine failure
	Err error
}

// RecognitionEngine is the event-driven capture backend the recognizer
// wraps. Engines push events until Stop or Abort is called.
type RecognitionEngine interface {
	// Supported reports whether the engine can capture speech at all
	Supported() bool
	// Start begins capture, pushing events to the given channel
	Start(ctx context.Context, events chan<- RecognitionEvent) error
	// Stop ends capture gracefully, flushing any pending final segment
	Stop()
	// Abort ends capture immediately, discarding pending segments
	Abort()
}

// RecognizerCallbacks notify the owner of recognizer activity
type RecognizerCallbacks struct {
	// OnTranscript receives the finalized transcript, exactly once per
	// listening session
	OnTranscript func(transcript string)
	// OnError receives a human-readable error description
	OnError func(message string)
	// OnStateChange is invoked when listening starts or stops
	OnStateChange func(listening bool)
}

// Recognizer adapts an event-driven recognition engine to a one-shot
// asynchronous operation: each Start yields at most one finalized
// transcript (the concatenation of all final segments since that Start),
// then stops implicitly.
type Recognizer struct {
	engine    RecognitionEngine
	callbacks RecognizerCallbacks
	log       *logger.Logger

	mu        sync.Mutex
	listening bool
	stop      context.CancelFunc
}

// NewRecognizer wraps the given engine. A nil engine means the capability
// is absent.
func NewRecognizer(engine RecognitionEngine, callbacks RecognizerCallbacks, log *logger.Logger) *Recognizer {
	return &Recognizer{
		engine:    engine,
		callbacks: callbacks,
		log:       log.WithComponent("voice.recognizer"),
	}
}

// Supported reports whether speech recognition is available
func (r *Recognizer) Supported() bool {
	return r.engine != nil && r.engine.Supported()
}

// IsListening reports whether a capture session is active
func (r *Recognizer) IsListening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

// Start begins a listening session. Starting while already listening is a
// no-op; starting without capability returns ErrUnsupported.
func (r *Recognizer) Start(ctx context.Context) error {
	if !r.Supported() {
		return ErrUnsupported
	}

	r.mu.Lock()
	if r.listening {
		r.mu.Unlock()
		return nil
	}
	r.listening = true
	sessionCtx, cancel := context.WithCancel(ctx)
	r.stop = cancel
	r.mu.Unlock()

	events := make(chan RecognitionEvent, 16)
	if err := r.engine.Start(sessionCtx, events); err != nil {
		r.setListening(false)
		cancel()
		return fmt.Errorf("failed to start speech recognition: %w", err)
	}

	r.notifyState(true)
	go r.consume(events)
	return nil
}

// Stop ends the listening session. Stopping while not listening is a no-op.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	listening := r.listening
	r.mu.Unlock()

	if !listening || !r.Supported() {
		return
	}
	r.engine.Stop()
}

// consume drains engine events, assembling the finalized transcript and
// delivering it exactly once.
func (r *Recognizer) consume(events <-chan RecognitionEvent) {
	var final strings.Builder
	delivered := false

	for event := range events {
		switch {
		case event.Err != nil:
			r.log.Warn("speech recognition error", "error", event.Err.Error())
			r.finish()
			if r.callbacks.OnError != nil {
				r.callbacks.OnError(fmt.Sprintf("Speech recognition error: %v", event.Err))
			}
			return

		case event.End:
			r.finish()
			if !delivered && final.Len() > 0 && r.callbacks.OnTranscript != nil {
				r.callbacks.OnTranscript(final.String())
			}
			return

		case event.IsFinal:
			final.WriteString(event.Transcript)
			if final.Len() > 0 && !delivered {
				delivered = true
				transcript := final.String()
				r.log.Debug("finalized transcript", "transcript", transcript)
				r.finish()
				if r.callbacks.OnTranscript != nil {
					r.callbacks.OnTranscript(transcript)
				}
				return
			}
		}
		// interim segments are dropped
	}

	r.finish()
}

// finish stops the engine and flips the listening flag
func (r *Recognizer) finish() {
	r.mu.Lock()
	wasListening := r.listening
	r.listening = false
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	r.engine.Abort()
	if wasListening {
		r.notifyState(false)
	}
}

func (r *Recognizer) setListening(v bool) {
	r.mu.Lock()
	r.listening = v
	r.mu.Unlock()
}

func (r *Recognizer) notifyState(listening bool) {
	if r.callbacks.OnStateChange != nil {
		r.callbacks.OnStateChange(listening)
	}
}
