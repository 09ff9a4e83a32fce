package di

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"ivar-voice-assistant/backend/internal/models"
	"ivar-voice-assistant/backend/internal/provider"
	"ivar-voice-assistant/backend/internal/session"
	"ivar-voice-assistant/backend/internal/store"
	"ivar-voice-assistant/backend/internal/voice"
	"ivar-voice-assistant/backend/internal/ws"
	"ivar-voice-assistant/backend/pkg/cache"
	"ivar-voice-assistant/backend/pkg/config"
	"ivar-voice-assistant/backend/pkg/health"
	"ivar-voice-assistant/backend/pkg/logger"
	"ivar-voice-assistant/backend/pkg/resilience"
	"ivar-voice-assistant/backend/pkg/secrets"
)

// Container holds all the dependencies for the application
type Container struct {
	Config        *config.Config
	Logger        *logger.Logger
	Store         *store.Store
	Cache         *cache.Cache
	Sessions      *session.Manager
	Hub           *ws.Hub
	Health        *health.Checker
	Synthesizer   *voice.Synthesizer
	Transcriber   voice.Transcriber
	TTS           voice.SynthesisEngine
	ProviderOpts  []provider.Option
	DefaultChatID string
}

// New builds the full dependency graph from configuration
func New(cfg *config.Config) (*Container, error) {
	log := logger.New(logger.Config{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.Format != "text",
	})
	logger.SetGlobal(log)

	if err := secrets.Init(log); err != nil {
		log.Warn("secrets manager unavailable, using environment only", "error", err.Error())
	}

	kv, err := openKV(cfg)
	if err != nil {
		return nil, err
	}

	var storeOpts []store.Option
	var c *cache.Cache
	if cfg.Cache.Enabled {
		c = cache.NewCacheWithOptions(cfg.Cache.TTL, cfg.Cache.PurgeWindow, cfg.Cache.MaxSize)
		storeOpts = append(storeOpts, store.WithCache(c))
	}
	st := store.New(kv, log, storeOpts...)

	breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("ai-provider"), log)
	providerOpts := []provider.Option{
		provider.WithBreaker(breaker),
		provider.WithHTTPClient(&http.Client{Timeout: cfg.AI.Timeout}),
	}

	prov, err := buildProvider(cfg, st, providerOpts)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(st, prov, log)

	hub := ws.NewHub(sessions, log)
	sessions.AddSessionOptions(session.WithNotifier(hub))

	container := &Container{
		Config:       cfg,
		Logger:       log,
		Store:        st,
		Cache:        c,
		Sessions:     sessions,
		Hub:          hub,
		ProviderOpts: providerOpts,
	}

	container.wireVoice(cfg, log)
	container.wireHealth(cfg, log, kv)

	return container, nil
}

// wireVoice sets up the speech pipeline when voice is enabled and the
// engine endpoints are configured. Playback is delivered to clients as
// base64 audio frames over the websocket hub.
func (c *Container) wireVoice(cfg *config.Config, log *logger.Logger) {
	if !cfg.Voice.Enabled {
		return
	}

	apiKey := secrets.GetSecretWithDefault(context.Background(), "openai-api-key", cfg.AI.APIKey)

	c.Transcriber = voice.NewWhisperSTT(apiKey, cfg.Voice.STTEndpoint)
	c.Hub.SetTranscriber(c.Transcriber)

	tts := voice.NewOpenAITTS(apiKey, cfg.Voice.TTSEndpoint)
	if cfg.Voice.TTSVoice != "" {
		tts.SetVoice(cfg.Voice.TTSVoice)
	}
	c.TTS = tts

	hub := c.Hub
	sink := func(ctx context.Context, audio []byte) error {
		hub.Broadcast("audio", map[string]interface{}{
			"data": base64.StdEncoding.EncodeToString(audio),
		})
		return nil
	}

	c.Synthesizer = voice.NewSynthesizer(tts, sink, voice.SynthesizerCallbacks{
		OnStart: func() { hub.SpeakingChanged(true) },
		OnEnd:   func() { hub.SpeakingChanged(false) },
		OnError: func(err error) { log.LogError(err, "speech synthesis failed") },
	}, log)

	c.Sessions.AddSessionOptions(session.WithSpeech(c.Synthesizer))
}

// wireHealth registers storage and provider checks
func (c *Container) wireHealth(cfg *config.Config, log *logger.Logger, kv store.KV) {
	checker := health.NewChecker(log.WithComponent("health"), 30*time.Second)

	switch backend := kv.(type) {
	case *store.GormKV:
		checker.RegisterStorageCheck(backend.Ping)
	case *store.RedisKV:
		checker.RegisterStorageCheck(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Storage.Timeout)
			defer cancel()
			return backend.Ping(ctx)
		})
	default:
		checker.RegisterStorageCheck(func() error { return nil })
	}

	checker.RegisterProviderCheck(func() (string, error) {
		return c.Sessions.Provider().Name(), nil
	})

	c.Health = checker
}

// EnsureDefaultChat creates the conversation used by relay requests that
// carry no chat id
func (c *Container) EnsureDefaultChat(ctx context.Context) {
	sess := c.Sessions.NewChat(ctx)
	c.DefaultChatID = sess.ChatID()
}

// openKV selects the storage backend from configuration
func openKV(cfg *config.Config) (store.KV, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		return store.OpenPostgres(store.PostgresConfig{
			Host:     cfg.Storage.Host,
			Port:     cfg.Storage.Port,
			User:     cfg.Storage.User,
			Password: cfg.Storage.Password,
			Name:     cfg.Storage.Name,
			SSLMode:  cfg.Storage.SSLMode,
		})
	case "redis":
		return store.NewRedisKV(cfg.Storage.RedisAddr), nil
	case "memory":
		return store.NewMemoryKV(), nil
	case "sqlite", "":
		return store.OpenSQLite(cfg.Storage.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildProvider constructs the response provider from saved settings,
// falling back to configuration defaults when nothing is saved yet
func buildProvider(cfg *config.Config, st *store.Store, opts []provider.Option) (provider.Provider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	settings, err := st.LoadSettings(ctx)
	if err != nil {
		settings = models.DefaultProviderSettings()
	}

	if settings.Provider == "" || settings.Provider == models.ProviderLocal {
		if cfg.AI.Provider != "" && cfg.AI.Provider != models.ProviderLocal {
			settings = models.ProviderSettings{
				Provider: cfg.AI.Provider,
				APIKey:   cfg.AI.APIKey,
			}
			if settings.APIKey == "" {
				settings.APIKey = secrets.GetSecretWithDefault(ctx, settings.Provider+"-api-key", "")
			}
			if err := settings.Validate(); err != nil {
				settings = models.DefaultProviderSettings()
			}
		}
	}

	return provider.New(settings, opts...)
}
