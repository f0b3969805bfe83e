// Package config loads the service configuration from the environment. A
// .env file is honoured when present and never required, so containerised
// deployments can pass everything through the environment directly.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the service. Zero values are never used;
// Load fills in defaults for everything optional and rejects missing
// required keys.
type Config struct {
	Port  string
	Debug bool

	ElasticsearchURL    string
	ElasticsearchIndex  string
	ElasticsearchAPIKey string

	EmbeddingEndpoint          string
	EmbeddingAPIKey            string
	EmbeddingKeepaliveEnabled  bool
	EmbeddingKeepaliveInterval time.Duration

	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIAnswerModel string

	MinQuestionLength int
	MaxQuestionLength int
	ResponseTimeout   time.Duration

	RateLimitPerMinute int
	RateLimitBurst     int

	DatabasePath string
	AuthCookie   string
}

// Load reads the environment (after a best-effort .env load) and returns
// the validated configuration.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, using existing environment", "error", err)
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8000"),
		Debug:               getBool("DEBUG", false),
		ElasticsearchURL:    getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
		ElasticsearchIndex:  getEnv("ELASTICSEARCH_INDEX", "standards"),
		ElasticsearchAPIKey: getEnv("ELASTICSEARCH_API_KEY", ""),

		EmbeddingEndpoint:          getEnv("EMBEDDING_API_ENDPOINT", ""),
		EmbeddingAPIKey:            getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingKeepaliveEnabled:  getBool("EMBEDDING_KEEPALIVE_ENABLED", true),
		EmbeddingKeepaliveInterval: time.Duration(getInt("EMBEDDING_KEEPALIVE_INTERVAL_MINUTES", 10)) * time.Minute,

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIAnswerModel: getEnv("OPENAI_MODEL_ANSWER", "gpt-4o"),

		MinQuestionLength: getInt("MIN_QUESTION_LENGTH", 3),
		MaxQuestionLength: getInt("MAX_QUESTION_LENGTH", 1000),
		ResponseTimeout:   time.Duration(getInt("RESPONSE_TIMEOUT_SECONDS", 30)) * time.Second,

		RateLimitPerMinute: getInt("RATELIMIT_PER_MINUTE", 60),
		RateLimitBurst:     getInt("RATELIMIT_BURST", 10),

		DatabasePath: getEnv("DATABASE_PATH", "conversations.db"),
		AuthCookie:   getEnv("AUTH_COOKIE_NAME", "standardgpt_auth"),
	}

	var missing []string
	if cfg.ElasticsearchAPIKey == "" {
		missing = append(missing, "ELASTICSEARCH_API_KEY")
	}
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if cfg.EmbeddingEndpoint == "" {
		missing = append(missing, "EMBEDDING_API_ENDPOINT")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if cfg.MinQuestionLength < 1 || cfg.MaxQuestionLength <= cfg.MinQuestionLength {
		return nil, fmt.Errorf("invalid question length bounds: min=%d max=%d",
			cfg.MinQuestionLength, cfg.MaxQuestionLength)
	}
	return cfg, nil
}

// getEnv trims quotes and whitespace; container runtimes occasionally pass
// quoted values through literally.
func getEnv(key, fallback string) string {
	if v := strings.Trim(os.Getenv(key), "\"' "); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ignoring non-numeric environment value", "key", key, "value", raw)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		slog.Warn("ignoring non-boolean environment value", "key", key, "value", raw)
		return fallback
	}
	return b
}
