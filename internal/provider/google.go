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

const googleEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

// Google calls the Gemini generateContent API. The key travels as a query
// parameter; the preamble and user message are sent as a single text part.
type Google struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewGoogle creates the Gemini-backed provider
func NewGoogle(apiKey string, opts ...Option) *Google {
	options := buildOptions(opts)
	endpoint := options.Endpoint
	if endpoint == "" {
		endpoint = googleEndpoint
	}
	return &Google{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: options.HTTPClient,
		breaker:    options.Breaker,
	}
}

// Name implements Provider
func (g *Google) Name() string {
	return models.ProviderGoogle
}

type googleRequest struct {
	Contents []googleContent `json:"contents"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GetResponse implements Provider. History is not included in Gemini
// requests; each call carries only the preamble and the current message.
func (g *Google) GetResponse(ctx context.Context, message string, history []models.Message) (string, error) {
	if g.apiKey == "" {
		return "", &Error{Provider: g.Name(), Err: ErrMissingAPIKey}
	}

	body := googleRequest{
		Contents: []googleContent{{
			Parts: []googlePart{{
				Text: SystemPreamble + "\n\nUser: " + message,
			}},
		}},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", &Error{Provider: g.Name(), Err: fmt.Errorf("error marshaling request: %v", err)}
	}

	var reply string
	err = execute(g.breaker, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"?key="+g.apiKey, bytes.NewBuffer(jsonData))
		if err != nil {
			return fmt.Errorf("error creating request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.httpClient.Do(req)
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

		var parsed googleResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("error unmarshaling response: %v", err)
		}

		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return ErrMissingReply
		}

		reply = parsed.Candidates[0].Content.Parts[0].Text
		return nil
	})
	if err != nil {
		return "", &Error{Provider: g.Name(), Err: err}
	}

	return reply, nil
}
