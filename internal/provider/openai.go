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

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAI calls the chat completions API with the preamble, the full prior
// history and the current user message.
type OpenAI struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewOpenAI creates the OpenAI-backed provider
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	options := buildOptions(opts)
	endpoint := options.Endpoint
	if endpoint == "" {
		endpoint = openAIEndpoint
	}
	return &OpenAI{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: options.HTTPClient,
		breaker:    options.Breaker,
	}
}

// Name implements Provider
func (o *OpenAI) Name() string {
	return models.ProviderOpenAI
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GetResponse implements Provider
func (o *OpenAI) GetResponse(ctx context.Context, message string, history []models.Message) (string, error) {
	if o.apiKey == "" {
		return "", &Error{Provider: o.Name(), Err: ErrMissingAPIKey}
	}

	messages := []openAIMessage{
		{Role: "system", Content: SystemPreamble},
	}
	for _, msg := range history {
		role := "assistant"
		if msg.IsUser {
			role = "user"
		}
		messages = append(messages, openAIMessage{Role: role, Content: msg.Text})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: message})

	body := openAIRequest{
		Model:       "gpt-3.5-turbo",
		Messages:    messages,
		MaxTokens:   150,
		Temperature: 0.7,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", &Error{Provider: o.Name(), Err: fmt.Errorf("error marshaling request: %v", err)}
	}

	var reply string
	err = execute(o.breaker, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewBuffer(jsonData))
		if err != nil {
			return fmt.Errorf("error creating request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+o.apiKey)

		resp, err := o.httpClient.Do(req)
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

		var parsed openAIResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("error unmarshaling response: %v", err)
		}

		if parsed.Error != nil {
			return fmt.Errorf("API error: %s", parsed.Error.Message)
		}

		if len(parsed.Choices) == 0 {
			return ErrMissingReply
		}

		reply = parsed.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", &Error{Provider: o.Name(), Err: err}
	}

	return reply, nil
}
