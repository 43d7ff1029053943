// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
	DBPath         string
	LogLevel       string
	LogFormat      string
	GRPCHealthAddr string
	StylesFile     string
	HistoryWindow  int

	MaxRequestBodyBytes int64
	MaxAudioUploadBytes int64

	LLM             LLMConfig
	Speech          SpeechConfig
	Retry           RetryConfig
	ConversationLog ConversationLogConfig
	Telemetry       TelemetryConfig
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// SpeechConfig configures speech-to-text and text-to-speech.
type SpeechConfig struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	STTModel      string
	STTLanguage   string

	// TTSProvider is "elevenlabs" or "openai". Empty picks ElevenLabs when
	// it has a key.
	TTSProvider string
	TTSModel    string
	TTSVoice    string

	ElevenLabsAPIKey       string
	ElevenLabsVoiceID      string
	ElevenLabsModelID      string
	ElevenLabsOutputFormat string
	ElevenLabsBaseURL      string
}

// RetryConfig bounds retries of SQLite writes.
type RetryConfig struct {
	DatabaseMaxRetries     int
	DatabaseRetryBaseDelay time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool
	Exporter    string
	Endpoint    string
	ServiceName string
	SampleRate  float64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	provider := strings.ToLower(getEnv("LLM_PROVIDER", "openai"))
	openAIKey := getEnv("OPENAI_API_KEY", "")

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		FrontendURL:         getEnv("FRONTEND_URL", ""),
		AllowedOrigins:      splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		DBPath:              getEnv("DB_PATH", "./data/agentdesk.db"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		GRPCHealthAddr:      getEnv("GRPC_HEALTH_ADDR", ""),
		StylesFile:          getEnv("STYLES_FILE", ""),
		HistoryWindow:       getEnvInt("HISTORY_WINDOW", 0),
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		MaxAudioUploadBytes: int64(getEnvInt("MAX_AUDIO_UPLOAD_BYTES", 25<<20)),
		LLM: LLMConfig{
			Provider:    provider,
			Model:       getEnv("GENERATION_MODEL_ID", ""),
			APIKey:      llmAPIKey(provider, openAIKey),
			BaseURL:     llmBaseURL(provider),
			MaxTokens:   getEnvInt("GENERATION_DEFAULT_MAX_TOKENS", 1000),
			Temperature: getEnvFloat("GENERATION_DEFAULT_TEMPERATURE", 0.1),
		},
		Speech: SpeechConfig{
			OpenAIAPIKey:           openAIKey,
			OpenAIBaseURL:          getEnv("OPENAI_BASE_URL", ""),
			STTModel:               getEnv("STT_MODEL_ID", "whisper-1"),
			STTLanguage:            getEnv("STT_LANGUAGE", ""),
			TTSProvider:            strings.ToLower(getEnv("TTS_PROVIDER", "")),
			TTSModel:               getEnv("TTS_MODEL_ID", "tts-1"),
			TTSVoice:               getEnv("TTS_VOICE", "alloy"),
			ElevenLabsAPIKey:       getEnv("ELEVENLABS_API_KEY", ""),
			ElevenLabsVoiceID:      getEnv("ELEVENLABS_VOICE_ID", ""),
			ElevenLabsModelID:      getEnv("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
			ElevenLabsOutputFormat: getEnv("ELEVENLABS_OUTPUT_FORMAT", "mp3_44100_128"),
			ElevenLabsBaseURL:      getEnv("ELEVENLABS_BASE_URL", ""),
		},
		Retry: RetryConfig{
			DatabaseMaxRetries:     getEnvInt("DB_MAX_RETRIES", 3),
			DatabaseRetryBaseDelay: getEnvDuration("DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
		Telemetry: TelemetryConfig{
			Enabled:     getEnvBool("OTEL_ENABLED", false),
			Exporter:    getEnv("OTEL_EXPORTER", "otlp-http"),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "agentdesk"),
			SampleRate:  getEnvFloat("OTEL_SAMPLE_RATE", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func llmAPIKey(provider, openAIKey string) string {
	switch provider {
	case "anthropic":
		return getEnv("ANTHROPIC_API_KEY", "")
	case "google":
		return getEnv("GEMINI_API_KEY", "")
	default:
		return openAIKey
	}
}

func llmBaseURL(provider string) string {
	switch provider {
	case "anthropic":
		return getEnv("ANTHROPIC_BASE_URL", "")
	case "google":
		return ""
	default:
		return getEnv("OPENAI_BASE_URL", "")
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "google":
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of openai, anthropic, google (got %q)", c.LLM.Provider)
	}
	switch c.Speech.TTSProvider {
	case "", "openai", "elevenlabs":
	default:
		return fmt.Errorf("TTS_PROVIDER must be openai or elevenlabs (got %q)", c.Speech.TTSProvider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("GENERATION_DEFAULT_MAX_TOKENS must be > 0")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("GENERATION_DEFAULT_TEMPERATURE must be within [0, 2]")
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("HISTORY_WINDOW must be >= 0")
	}
	if c.MaxRequestBodyBytes <= 0 || c.MaxAudioUploadBytes <= 0 {
		return fmt.Errorf("request size limits must be > 0")
	}
	if c.Retry.DatabaseMaxRetries <= 0 {
		return fmt.Errorf("DB_MAX_RETRIES must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// UseElevenLabs reports whether speech synthesis goes to ElevenLabs.
func (c *Config) UseElevenLabs() bool {
	switch c.Speech.TTSProvider {
	case "elevenlabs":
		return true
	case "openai":
		return false
	default:
		return c.Speech.ElevenLabsAPIKey != ""
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
