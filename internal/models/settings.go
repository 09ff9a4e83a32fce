package models

import (
	"fmt"
)

// Supported response providers
const (
	ProviderLocal       = "local"
	ProviderGoogle      = "google"
	ProviderOpenAI      = "openai"
	ProviderHuggingFace = "huggingface"
)

// ProviderSettings selects the backend used to generate assistant replies.
// Global singleton, mutated only via an explicit settings save.
type ProviderSettings struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
}

// DefaultProviderSettings returns the settings used before any save
func DefaultProviderSettings() ProviderSettings {
	return ProviderSettings{Provider: ProviderLocal}
}

// Validate checks the provider kind and enforces that every provider
// except local carries a non-empty API key.
func (s ProviderSettings) Validate() error {
	switch s.Provider {
	case ProviderLocal:
		return nil
	case ProviderGoogle, ProviderOpenAI, ProviderHuggingFace:
		if s.APIKey == "" {
			return fmt.Errorf("provider %q requires an API key", s.Provider)
		}
		return nil
	default:
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
}

// UserPreferences holds voice and presentation preferences
type UserPreferences struct {
	VoiceEnabled bool    `json:"voiceEnabled"`
	Theme        string  `json:"theme"`
	Language     string  `json:"language"`
	SpeechRate   float64 `json:"speechRate"`
	SpeechPitch  float64 `json:"speechPitch"`
	SpeechVolume float64 `json:"speechVolume"`
}

// DefaultPreferences returns the preferences used before any save
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		VoiceEnabled: true,
		Theme:        "dark",
		Language:     "en-US",
		SpeechRate:   0.9,
		SpeechPitch:  1,
		SpeechVolume: 0.8,
	}
}
