package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the meeting backend service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Postgres connection string. Meetings (and their audio blobs) live here.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Deepgram speech-to-text configuration.
	// The API key is deliberately NOT required at startup: a missing key is
	// surfaced per-session as an error event to the connecting client.
	DeepgramAPIKey     string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramListenURL  string `envconfig:"DEEPGRAM_LISTEN_URL" default:"wss://api.deepgram.com/v1/listen"`
	DeepgramEncoding   string `envconfig:"DEEPGRAM_ENCODING" default:"linear16"`
	DeepgramSampleRate int    `envconfig:"DEEPGRAM_SAMPLE_RATE" default:"16000"`

	// DeepSeek summarization (OpenAI-compatible API). Optional; summarization
	// is skipped when the key is unset.
	DeepSeekAPIKey  string `envconfig:"DEEPSEEK_API_KEY" default:""`
	DeepSeekBaseURL string `envconfig:"DEEPSEEK_BASE_URL" default:"https://api.deepseek.com"`
	DeepSeekModel   string `envconfig:"DEEPSEEK_MODEL" default:"deepseek-chat"`

	// You.com search API for research-insight enrichment. Optional.
	YouComAPIKey    string `envconfig:"YOUCOM_API_KEY" default:""`
	YouComSearchURL string `envconfig:"YOUCOM_SEARCH_URL" default:"https://ydc-index.io"`

	// Foxit document generation for PDF meeting reports. Optional.
	FoxitHost         string `envconfig:"FOXIT_HOST" default:"https://na1.fusion.foxit.com"`
	FoxitClientID     string `envconfig:"FOXIT_CLIENT_ID" default:""`
	FoxitClientSecret string `envconfig:"FOXIT_CLIENT_SECRET" default:""`
	FoxitTemplateB64  string `envconfig:"FOXIT_TEMPLATE_B64" default:""`

	// Supabase-issued JWT verification. JWKS (RS256/ES256) is tried first when
	// SupabaseURL is set, then the legacy HS256 secret.
	SupabaseURL       string `envconfig:"SUPABASE_URL" default:""`
	SupabaseJWTSecret string `envconfig:"SUPABASE_JWT_SECRET" default:""`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Port == "" {
		return nil, fmt.Errorf("PORT must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
