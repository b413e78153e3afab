// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the meeting recorder service.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Meeting lifecycle
	MinimumMeetingParticipants int `envconfig:"MINIMUM_MEETING_PARTICIPANTS" default:"2" validate:"min=1"`

	// Audio capture configuration
	SourceSampleRate      int     `envconfig:"SOURCE_SAMPLE_RATE" default:"48000" validate:"min=8000"` // inbound PCM rate
	SourceChannels        int     `envconfig:"SOURCE_CHANNELS" default:"2" validate:"min=1,max=8"`
	SilenceTimeoutSeconds float64 `envconfig:"SILENCE_TIMEOUT_SECONDS" default:"5" validate:"gt=0"` // quiet gap that ends an utterance
	MinSilenceMs          int     `envconfig:"MIN_SILENCE_MS" default:"1000" validate:"min=1"`      // silent run length inside the buffer
	SilenceThresholdDB    float64 `envconfig:"SILENCE_THRESHOLD_DB" default:"-40" validate:"lt=0"`

	// Audio retention
	SaveAudio bool   `envconfig:"SAVE_AUDIO" default:"false"`
	AudioPath string `envconfig:"AUDIO_PATH" default:""` // required when SAVE_AUDIO is set

	// MinIO artifact storage; local disk is used when no endpoint is set
	MinIOEndpoint  string `envconfig:"MINIO_ENDPOINT" default:""`
	MinIOAccessKey string `envconfig:"MINIO_ACCESS_KEY" default:""`
	MinIOSecretKey string `envconfig:"MINIO_SECRET_KEY" default:""`
	MinIOBucket    string `envconfig:"MINIO_BUCKET" default:"meeting-audio"`
	MinIOUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// Deepgram transcription configuration
	DeepgramAPIKey         string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel          string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage       string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	DeepgramTimeoutSeconds int    `envconfig:"DEEPGRAM_TIMEOUT" default:"30" validate:"min=1"`

	// Summarization endpoint (OpenAI-compatible chat completions)
	SummaryAPIKey         string  `envconfig:"SUMMARY_API_KEY" required:"true"`
	SummaryBaseURL        string  `envconfig:"SUMMARY_BASE_URL" default:"https://api.openai.com"`
	SummaryModel          string  `envconfig:"SUMMARY_MODEL" default:"gpt-4o-mini"`
	SummaryTemperature    float64 `envconfig:"SUMMARY_TEMPERATURE" default:"0.3" validate:"min=0,max=2"`
	SummaryMaxTokens      int     `envconfig:"SUMMARY_MAX_TOKENS" default:"2048" validate:"min=1"`
	SummaryTimeoutSeconds int     `envconfig:"SUMMARY_TIMEOUT" default:"60" validate:"min=1"`

	// Notification webhook; deliveries are skipped when unset
	NotifyWebhookURL      string `envconfig:"NOTIFY_WEBHOOK_URL" default:""`
	NotifyToken           string `envconfig:"NOTIFY_TOKEN" default:""`
	NotifyTimeoutSeconds  int    `envconfig:"NOTIFY_TIMEOUT" default:"10" validate:"min=1"`

	// Meeting store; in-memory when no Redis address is configured
	RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0" validate:"min=0"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5" validate:"min=1"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30" validate:"min=1"` // seconds
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3" validate:"min=1"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100" validate:"min=1"` // milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5" validate:"min=1"`
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000" validate:"min=1"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from a .env file if present, then from the
// environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables,
// skipping the .env file. Used in containerized deployments.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Cross-field rules envconfig tags can't express.
	if cfg.SaveAudio && cfg.AudioPath == "" && cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("SAVE_AUDIO requires AUDIO_PATH or MINIO_ENDPOINT")
	}
	if cfg.MinIOEndpoint != "" && (cfg.MinIOAccessKey == "" || cfg.MinIOSecretKey == "") {
		return nil, fmt.Errorf("MINIO_ENDPOINT requires MINIO_ACCESS_KEY and MINIO_SECRET_KEY")
	}

	return &cfg, nil
}
