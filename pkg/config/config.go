package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
		BaseURL string
	}

	// Storage configuration
	Storage struct {
		// Backend selects the key-value backend: "postgres", "sqlite", "redis" or "memory"
		Backend  string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		// SQLitePath is the database file used when Backend is "sqlite"
		SQLitePath string
		RedisAddr  string
		Timeout    time.Duration
	}

	// AI provider configuration
	AI struct {
		// Provider is the default response provider: local, google, openai or huggingface
		Provider string
		APIKey   string
		Timeout  time.Duration
	}

	// Voice configuration
	Voice struct {
		Enabled     bool
		Language    string
		SpeechRate  float64
		SpeechPitch float64
		Volume      float64
		STTEndpoint string
		TTSEndpoint string
		TTSVoice    string
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Cache settings
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	// Observability settings
	Observability struct {
		MetricsEnabled bool
		MetricsAddr    string
		TracingEnabled bool
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Server config
		instance.Server.Port = getEnvString("PORT", "5000")
		instance.Server.Env = getEnvString("APP_ENV", "development")
		instance.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
		instance.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+instance.Server.Port)

		// Storage config
		instance.Storage.Backend = getEnvString("STORAGE_BACKEND", "sqlite")
		instance.Storage.Host = getEnvString("DB_HOST", "localhost")
		instance.Storage.Port = getEnvString("DB_PORT", "5432")
		instance.Storage.User = getEnvString("DB_USER", "postgres")
		instance.Storage.Password = getEnvString("DB_PASSWORD", "postgres")
		instance.Storage.Name = getEnvString("DB_NAME", "ivar")
		instance.Storage.SSLMode = getEnvString("DB_SSL_MODE", "disable")
		instance.Storage.SQLitePath = getEnvString("SQLITE_PATH", "ivar.db")
		instance.Storage.RedisAddr = getEnvString("REDIS_URL", "localhost:6379")
		instance.Storage.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

		// AI config
		instance.AI.Provider = getEnvString("AI_PROVIDER", "local")
		instance.AI.APIKey = getEnvString("AI_API_KEY", "")
		instance.AI.Timeout = getEnvDuration("AI_TIMEOUT", 30*time.Second)

		// Voice config
		instance.Voice.Enabled = getEnvBool("VOICE_ENABLED", true)
		instance.Voice.Language = getEnvString("VOICE_LANGUAGE", "en-US")
		instance.Voice.SpeechRate = getEnvFloat("VOICE_SPEECH_RATE", 0.9)
		instance.Voice.SpeechPitch = getEnvFloat("VOICE_SPEECH_PITCH", 1.0)
		instance.Voice.Volume = getEnvFloat("VOICE_VOLUME", 0.8)
		instance.Voice.STTEndpoint = getEnvString("VOICE_STT_ENDPOINT", "https://api.openai.com/v1/audio/transcriptions")
		instance.Voice.TTSEndpoint = getEnvString("VOICE_TTS_ENDPOINT", "https://api.openai.com/v1/audio/speech")
		instance.Voice.TTSVoice = getEnvString("VOICE_TTS_VOICE", "alloy")

		// Security config
		instance.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
		instance.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
		instance.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
		instance.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")

		// Cache settings
		instance.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
		instance.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
		instance.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
		instance.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

		// Observability settings
		instance.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)
		instance.Observability.MetricsAddr = getEnvString("METRICS_ADDR", ":2112")
		instance.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
