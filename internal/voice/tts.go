package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const ttsEndpoint = "https://api.openai.com/v1/audio/speech"

// SynthesisEngine converts text into playable audio
type SynthesisEngine interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// OpenAITTS synthesizes speech through the OpenAI TTS API
type OpenAITTS struct {
	apiKey   string
	endpoint string
	model    string
	voice    string
	client   *http.Client
}

// NewOpenAITTS creates a TTS engine. An empty endpoint selects the default
// API endpoint.
func NewOpenAITTS(apiKey, endpoint string) *OpenAITTS {
	if endpoint == "" {
		endpoint = ttsEndpoint
	}
	return &OpenAITTS{
		apiKey:   apiKey,
		endpoint: endpoint,
		model:    "tts-1",
		voice:    "alloy",
		client:   &http.Client{},
	}
}

// SetVoice sets the TTS voice
func (t *OpenAITTS) SetVoice(voice string) {
	t.voice = voice
}

// Synthesize converts text to audio
func (t *OpenAITTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	reqBody := map[string]string{
		"model": t.model,
		"input": text,
		"voice": t.voice,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("TTS API error: %s", string(errBody))
	}

	return io.ReadAll(resp.Body)
}
