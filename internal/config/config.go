package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice bridge service
type Config struct {
	// Server configuration
	Host     string `envconfig:"HOST" default:"0.0.0.0"`
	Port     string `envconfig:"PORT" default:"8765"`
	BasePath string `envconfig:"BASE_WS_PATH" default:"/media"`

	// Gemini configuration
	GeminiAPIKey        string `envconfig:"GEMINI_API_KEY" required:"true"`
	GeminiLiveModel     string `envconfig:"GEMINI_LIVE_MODEL" default:"models/gemini-2.5-flash-preview-native-audio-dialog"`
	GeminiAnalysisModel string `envconfig:"GEMINI_ANALYSIS_MODEL" default:"gemini-2.5-flash"`
	GeminiVoice         string `envconfig:"GEMINI_VOICE" default:"Zephyr"`

	// Audio pipeline configuration
	TelephonySampleRate int `envconfig:"TELEPHONY_SAMPLE_RATE" default:"8000"`
	LLMInputSampleRate  int `envconfig:"LLM_INPUT_SAMPLE_RATE" default:"16000"`
	// The Live API does not advertise its output rate up front; 24 kHz is the
	// observed default and can be overridden here.
	LLMOutputSampleRate int `envconfig:"LLM_OUTPUT_SAMPLE_RATE" default:"24000"`
	FlushSizeBytes      int `envconfig:"FLUSH_SIZE_BYTES" default:"3840"`
	MinChunkBytes       int `envconfig:"MIN_CHUNK_BYTES" default:"3840"`
	FlushIntervalMs     int `envconfig:"FLUSH_INTERVAL_MS" default:"100"`

	// Session configuration
	StartFrameTimeoutS int  `envconfig:"START_FRAME_TIMEOUT_S" default:"10"`
	KeepAliveIntervalS int  `envconfig:"KEEP_ALIVE_INTERVAL_S" default:"30"`
	DrainTimeoutS      int  `envconfig:"DRAIN_TIMEOUT_S" default:"30"`
	MaxCallDurationS   int  `envconfig:"MAX_CALL_DURATION_S" default:"0"`
	DTMFInterruptsTurn bool `envconfig:"DTMF_INTERRUPTS_TURN" default:"false"`

	// Tenant configuration
	DefaultTenant string `envconfig:"DEFAULT_TENANT" default:"bakery"`

	// Persistence (Postgres DSN; carries both endpoint and credentials)
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Exotel REST API configuration
	ExotelAPIKey     string `envconfig:"EXOTEL_API_KEY"`
	ExotelAPIToken   string `envconfig:"EXOTEL_API_TOKEN"`
	ExotelAccountSid string `envconfig:"EXOTEL_ACCOUNT_SID"`
	ExotelSubdomain  string `envconfig:"EXOTEL_SUBDOMAIN" default:"api.exotel.com"`

	// MSG91 WhatsApp configuration
	MSG91AuthKey           string `envconfig:"MSG91_AUTH_KEY"`
	MSG91IntegratedNumber  string `envconfig:"MSG91_INTEGRATED_NUMBER" default:"15557892623"`
	MSG91TemplateNamespace string `envconfig:"MSG91_TEMPLATE_NAMESPACE" default:"2e1d8662_869f_48e9_bb1f_5f995acb2c20"`
	DefaultOwnerPhone      string `envconfig:"DEFAULT_OWNER_PHONE" default:"919482743864"`
	DefaultCountryCode     string `envconfig:"DEFAULT_COUNTRY_CODE" default:"91"`

	// Resilience configuration
	RetryMaxAttempts    int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff int `envconfig:"RETRY_INITIAL_BACKOFF" default:"1000"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
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

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.FlushSizeBytes <= 0 || cfg.FlushSizeBytes%320 != 0 {
		return nil, fmt.Errorf("FLUSH_SIZE_BYTES must be a positive multiple of 320, got %d", cfg.FlushSizeBytes)
	}
	if cfg.MinChunkBytes <= 0 || cfg.MinChunkBytes%320 != 0 {
		return nil, fmt.Errorf("MIN_CHUNK_BYTES must be a positive multiple of 320, got %d", cfg.MinChunkBytes)
	}

	return &cfg, nil
}

// FlushInterval returns the outbound buffer flush interval as a duration
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// KeepAliveInterval returns the keep-alive period as a duration
func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAliveIntervalS) * time.Second
}

// StartFrameTimeout returns the deadline for the initial start frame
func (c *Config) StartFrameTimeout() time.Duration {
	return time.Duration(c.StartFrameTimeoutS) * time.Second
}

// DrainTimeout returns the cap on outbound drain after caller hangup
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutS) * time.Second
}

// RetryBackoff returns the initial retry backoff as a duration
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoff) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
