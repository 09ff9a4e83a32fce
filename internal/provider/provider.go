package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ivar-voice-assistant/backend/internal/models"
	"ivar-voice-assistant/backend/pkg/resilience"
)

// SystemPreamble is prepended to every remote request
const SystemPreamble = "You are IVAR, a helpful AI voice assistant similar to Google Assistant or Siri. Be conversational, helpful, and friendly. Keep responses concise but informative."

// Provider produces an assistant reply for a user message. Implementations
// are the local pattern matcher and the remote Google, OpenAI and
// Hugging Face clients. Switching provider is a pure configuration change;
// it only affects subsequent calls.
type Provider interface {
	Name() string
	GetResponse(ctx context.Context, message string, history []models.Message) (string, error)
}

// Sentinel provider failures
var (
	ErrMissingAPIKey   = errors.New("API key not provided")
	ErrEmptyInput      = errors.New("empty input")
	ErrMissingReply    = errors.New("response missing reply field")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Error wraps any failure produced by a provider. A single failed attempt
// surfaces immediately; providers never retry.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err originated from a provider
func IsProviderError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

// Options configures remote providers
type Options struct {
	HTTPClient *http.Client
	// Endpoint overrides the provider's default API endpoint
	Endpoint string
	// Breaker short-circuits calls after repeated failures
	Breaker *resilience.CircuitBreaker
}

// Option mutates Options
type Option func(*Options)

// WithHTTPClient sets the HTTP client used for remote calls
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) { o.HTTPClient = client }
}

// WithEndpoint overrides the provider API endpoint
func WithEndpoint(endpoint string) Option {
	return func(o *Options) { o.Endpoint = endpoint }
}

// WithBreaker wraps remote calls in a circuit breaker
func WithBreaker(breaker *resilience.CircuitBreaker) Option {
	return func(o *Options) { o.Breaker = breaker }
}

func buildOptions(opts []Option) Options {
	options := Options{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// New builds the provider selected by settings. The API key requirement for
// remote providers is enforced on the first GetResponse call, before any
// network I/O, so a misconfigured provider fails fast without reaching out.
func New(settings models.ProviderSettings, opts ...Option) (Provider, error) {
	switch settings.Provider {
	case models.ProviderLocal, "":
		return NewLocal(), nil
	case models.ProviderGoogle:
		return NewGoogle(settings.APIKey, opts...), nil
	case models.ProviderOpenAI:
		return NewOpenAI(settings.APIKey, opts...), nil
	case models.ProviderHuggingFace:
		return NewHuggingFace(settings.APIKey, opts...), nil
	default:
		return nil, &Error{Provider: settings.Provider, Err: ErrUnknownProvider}
	}
}

// execute runs fn either directly or through the breaker when configured
func execute(breaker *resilience.CircuitBreaker, fn func() error) error {
	if breaker == nil {
		return fn()
	}
	return breaker.Execute(fn)
}
