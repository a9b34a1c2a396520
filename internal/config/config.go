// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Durable store
	DatabasePath string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// Document index
	WeaviateURL   string
	WeaviateClass string

	// Pipeline settings
	Pipeline Settings

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Durable store
		DatabasePath: getEnv("DATABASE_PATH", "data/engine.db"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),

		// Document index
		WeaviateURL:   getEnv("WEAVIATE_URL", "http://localhost:8081"),
		WeaviateClass: getEnv("WEAVIATE_CLASS", "DocumentChunk"),

		// Pipeline
		Pipeline: Settings{
			AdmissionStrategy:   getEnv("ADMISSION_STRATEGY", "fixed_window"),
			RateLimitRequests:   getIntEnv("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:     getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			DefaultQuotaCeiling: getInt64Env("DEFAULT_QUOTA_CEILING", 1000),
			RetrievalK:          getIntEnv("RETRIEVAL_K", 4),
			RetrievalAttempts:   getIntEnv("RETRIEVAL_ATTEMPTS", 2),
			MaxPromptChars:      getIntEnv("MAX_PROMPT_CHARS", 12000),
			MaxHistoryMessages:  getIntEnv("MAX_HISTORY_MESSAGES", 20),
			GenerationTimeout:   getDurationEnv("GENERATION_TIMEOUT", 30*time.Second),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
