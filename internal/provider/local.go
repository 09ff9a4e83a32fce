package provider

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"ivar-voice-assistant/backend/internal/models"
)

// Canned local replies per category
var (
	localGreetingReply = "Hello! It's great to talk with you. How can I assist you today?"
	localWeatherReply  = "I'd love to help with weather information! For real-time weather, I'd need to integrate with a weather API. What location are you interested in?"
	localHelpReply     = "I can help you with various tasks! Try asking me about the time, weather, tell me a joke, or just have a conversation. I'm here to assist!"

	localJokes = []string{
		"Why don't scientists trust atoms? Because they make up everything!",
		"Why did the AI go to therapy? It had too many deep learning issues!",
		"What do you call a robot that takes the long way around? R2-Detour!",
	}

	localFallbacks = []string{
		"That's interesting! Tell me more about that.",
		"I understand. How can I help you with that?",
		"Thanks for sharing that with me. What would you like to know?",
		"I'm here to help! What specific information are you looking for?",
		"That's a great question! While I'm still learning, I'd love to help you explore that topic.",
	}
)

// Local matches keywords against a fixed reply table. It performs no
// network I/O and fails only on empty input.
type Local struct {
	now  func() time.Time
	intn func(n int) int
}

// LocalOption configures the local provider
type LocalOption func(*Local)

// WithClock overrides the time source for time and date replies
func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) { l.now = now }
}

// WithRandSource overrides random selection among candidate replies
func WithRandSource(intn func(n int) int) LocalOption {
	return func(l *Local) { l.intn = intn }
}

// NewLocal creates the local pattern-matching provider
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		now:  time.Now,
		intn: rand.Intn,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name implements Provider
func (l *Local) Name() string {
	return models.ProviderLocal
}

// GetResponse implements Provider. History is ignored; the local table is
// stateless.
func (l *Local) GetResponse(ctx context.Context, message string, history []models.Message) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", &Error{Provider: l.Name(), Err: ErrEmptyInput}
	}

	input := strings.ToLower(message)

	switch {
	case strings.Contains(input, "hello") || strings.Contains(input, "hi"):
		return localGreetingReply, nil
	case strings.Contains(input, "weather"):
		return localWeatherReply, nil
	case strings.Contains(input, "time"):
		return fmt.Sprintf("The current time is %s.", l.now().Format("3:04:05 PM")), nil
	case strings.Contains(input, "date"):
		return fmt.Sprintf("Today's date is %s.", l.now().Format("1/2/2006")), nil
	case strings.Contains(input, "joke"):
		return localJokes[l.intn(len(localJokes))], nil
	case strings.Contains(input, "help"):
		return localHelpReply, nil
	}

	return localFallbacks[l.intn(len(localFallbacks))], nil
}
