package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
)

const whisperEndpoint = "https://api.openai.com/v1/audio/transcriptions"

// Transcriber converts captured audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// WhisperSTT transcribes audio through the Whisper HTTP API
type WhisperSTT struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
}

// NewWhisperSTT creates a Whisper transcriber. An empty endpoint selects
// the default API endpoint.
func NewWhisperSTT(apiKey, endpoint string) *WhisperSTT {
	if endpoint == "" {
		endpoint = whisperEndpoint
	}
	return &WhisperSTT{
		apiKey:   apiKey,
		endpoint: endpoint,
		model:    "whisper-1",
		client:   &http.Client{},
	}
}

// Transcribe converts audio to text
func (w *WhisperSTT) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "audio.webm")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}

	if err := writer.WriteField("model", w.model); err != nil {
		return "", err
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", err
	}

	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, &buf)
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error: %s", string(body))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}

	return result.Text, nil
}

// StreamEngine is a RecognitionEngine fed with audio chunks pushed from a
// client. Stopping the engine transcribes the buffered audio and emits the
// result as a single final segment.
type StreamEngine struct {
	transcriber Transcriber

	mu      sync.Mutex
	active  bool
	buffer  []byte
	events  chan<- RecognitionEvent
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewStreamEngine creates a push-based recognition engine. A nil
// transcriber means the capability is absent.
func NewStreamEngine(transcriber Transcriber) *StreamEngine {
	return &StreamEngine{transcriber: transcriber}
}

// Supported implements RecognitionEngine
func (e *StreamEngine) Supported() bool {
	return e.transcriber != nil
}

// Start implements RecognitionEngine
func (e *StreamEngine) Start(ctx context.Context, events chan<- RecognitionEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return fmt.Errorf("capture already active")
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	e.active = true
	e.buffer = nil
	e.events = events
	e.ctx = sessionCtx
	e.cancel = cancel
	e.stopped = make(chan struct{})
	return nil
}

// Push appends captured audio to the session buffer
func (e *StreamEngine) Push(audio []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return
	}
	e.buffer = append(e.buffer, audio...)
}

// Stop implements RecognitionEngine: the buffered audio is transcribed and
// the result emitted as a final segment before the end event.
func (e *StreamEngine) Stop() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	audio := e.buffer
	e.buffer = nil
	events := e.events
	ctx := e.ctx
	stopped := e.stopped
	e.mu.Unlock()

	go func() {
		defer close(events)
		defer close(stopped)

		if len(audio) > 0 {
			text, err := e.transcriber.Transcribe(ctx, audio)
			if err != nil {
				events <- RecognitionEvent{Err: err}
				return
			}
			if text != "" {
				events <- RecognitionEvent{Transcript: text, IsFinal: true}
			}
		}
		events <- RecognitionEvent{End: true}
	}()
}

// Abort implements RecognitionEngine: capture ends and buffered audio is
// discarded without transcription.
func (e *StreamEngine) Abort() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	e.buffer = nil
	events := e.events
	cancel := e.cancel
	stopped := e.stopped
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	go func() {
		defer close(events)
		defer close(stopped)
		events <- RecognitionEvent{End: true}
	}()
}
