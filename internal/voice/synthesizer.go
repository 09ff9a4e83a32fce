package voice

import (
	"context"
	"sync"

	"ivar-voice-assistant/backend/pkg/logger"
	"ivar-voice-assistant/backend/pkg/observability"
)

// PlaybackSink consumes synthesized audio. Implementations push the audio
// to a connected client or an output device.
type PlaybackSink func(ctx context.Context, audio []byte) error

// SynthesizerCallbacks toggle the speaking indicator and surface failures
type SynthesizerCallbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(err error)
}

// Synthesizer provides fire-and-forget speech playback. Starting a new
// utterance cancels the utterance currently in progress; at most one
// utterance is active at a time.
type Synthesizer struct {
	engine    SynthesisEngine
	sink      PlaybackSink
	callbacks SynthesizerCallbacks
	log       *logger.Logger

	mu       sync.Mutex
	speaking bool
	cancel   context.CancelFunc
	seq      uint64
}

// NewSynthesizer creates a synthesizer over the given engine and sink.
// A nil engine disables speech output; Speak becomes a no-op.
func NewSynthesizer(engine SynthesisEngine, sink PlaybackSink, callbacks SynthesizerCallbacks, log *logger.Logger) *Synthesizer {
	return &Synthesizer{
		engine:    engine,
		sink:      sink,
		callbacks: callbacks,
		log:       log.WithComponent("voice.synthesizer"),
	}
}

// Supported reports whether speech synthesis is available
func (s *Synthesizer) Supported() bool {
	return s.engine != nil
}

// IsSpeaking reports whether an utterance is in progress
func (s *Synthesizer) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Speak synthesizes and plays the given text, cancelling any utterance in
// progress. Errors are reported through OnError, never returned.
func (s *Synthesizer) Speak(text string) {
	if !s.Supported() || text == "" {
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.seq++
	seq := s.seq
	s.speaking = true
	s.mu.Unlock()

	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart()
	}

	go func() {
		err := s.speak(ctx, text)

		s.mu.Lock()
		current := s.seq == seq
		if current {
			s.speaking = false
			s.cancel = nil
		}
		s.mu.Unlock()

		// A superseded utterance stays silent; the replacement owns the
		// speaking indicator.
		if !current {
			return
		}

		if err != nil && ctx.Err() == nil {
			s.log.Warn("speech synthesis failed", "error", err.Error())
			observability.SpeechUtterancesTotal.WithLabelValues("error").Inc()
			if s.callbacks.OnError != nil {
				s.callbacks.OnError(err)
			}
			return
		}

		if ctx.Err() != nil {
			observability.SpeechUtterancesTotal.WithLabelValues("canceled").Inc()
		} else {
			observability.SpeechUtterancesTotal.WithLabelValues("ok").Inc()
		}
		if s.callbacks.OnEnd != nil {
			s.callbacks.OnEnd()
		}
	}()
}

// Cancel stops the utterance in progress, if any
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.speaking = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *Synthesizer) speak(ctx context.Context, text string) error {
	audio, err := s.engine.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.sink != nil {
		return s.sink(ctx, audio)
	}
	return nil
}
