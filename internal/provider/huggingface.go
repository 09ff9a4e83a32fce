package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ivar-voice-assistant/backend/internal/models"
	"ivar-voice-assistant/backend/pkg/resilience"
)

const huggingFaceEndpoint = "https://api-inference.huggingface.co/models/microsoft/DialoGPT-medium"

// HuggingFace calls the hosted inference API for a conversational model.
// History is not supported by this endpoint; each call is standalone.
type HuggingFace struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewHuggingFace creates the Hugging Face-backed provider
func NewHuggingFace(apiKey string, opts ...Option) *HuggingFace {
	options := buildOptions(opts)
	endpoint := options.Endpoint
	if endpoint == "" {
		endpoint = huggingFaceEndpoint
	}
	return &HuggingFace{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: options.HTTPClient,
		breaker:    options.Breaker,
	}
}

// Name implements Provider
func (h *HuggingFace) Name() string {
	return models.ProviderHuggingFace
}

type huggingFaceRequest struct {
	Inputs     string                `json:"inputs"`
	Parameters huggingFaceParameters `json:"parameters"`
}

type huggingFaceParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type huggingFaceResponse struct {
	GeneratedText string `json:"generated_text"`
}

// GetResponse implements Provider
func (h *HuggingFace) GetResponse(ctx context.Context, message string, history []models.Message) (string, error) {
	if h.apiKey == "" {
		return "", &Error{Provider: h.Name(), Err: ErrMissingAPIKey}
	}

	body := huggingFaceRequest{
		Inputs: message,
		Parameters: huggingFaceParameters{
			MaxNewTokens: 50,
			Temperature:  0.7,
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", &Error{Provider: h.Name(), Err: fmt.Errorf("error marshaling request: %v", err)}
	}

	var reply string
	err = execute(h.breaker, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewBuffer(jsonData))
		if err != nil {
			return fmt.Errorf("error creating request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+h.apiKey)

		resp, err := h.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("error making API request: %v", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error reading response body: %v", err)
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("API request failed with status code %d: %s", resp.StatusCode, string(respBody))
		}

		var parsed []huggingFaceResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("error unmarshaling response: %v", err)
		}

		if len(parsed) == 0 || parsed[0].GeneratedText == "" {
			return ErrMissingReply
		}

		reply = parsed[0].GeneratedText
		return nil
	})
	if err != nil {
		return "", &Error{Provider: h.Name(), Err: err}
	}

	return reply, nil
}
