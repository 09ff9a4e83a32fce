package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Assistant metrics, exposed on /metrics
var (
	// TurnsTotal counts completed conversation turns by provider and outcome
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ivar_conversation_turns_total",
		Help: "Completed conversation turns, labelled by provider and outcome (ok or fallback)",
	}, []string{"provider", "outcome"})

	// ProviderErrorsTotal counts failed provider calls by provider
	ProviderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ivar_provider_errors_total",
		Help: "Failed AI provider calls",
	}, []string{"provider"})

	// StaleRepliesTotal counts replies dropped after a chat switch
	StaleRepliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ivar_stale_replies_dropped_total",
		Help: "Provider replies dropped because the session switched chats mid-flight",
	})

	// SpeechUtterancesTotal counts synthesized utterances by result
	SpeechUtterancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ivar_speech_utterances_total",
		Help: "Speech synthesis attempts, labelled by result (ok, error or canceled)",
	}, []string{"result"})
)
