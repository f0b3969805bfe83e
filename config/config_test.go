package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ELASTICSEARCH_API_KEY", "es-key")
	t.Setenv("OPENAI_API_KEY", "oa-key")
	t.Setenv("EMBEDDING_API_ENDPOINT", "https://embed.example.com/embed")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.MinQuestionLength != 3 || cfg.MaxQuestionLength != 1000 {
		t.Errorf("question bounds = %d/%d", cfg.MinQuestionLength, cfg.MaxQuestionLength)
	}
	if cfg.ResponseTimeout != 30*time.Second {
		t.Errorf("ResponseTimeout = %v", cfg.ResponseTimeout)
	}
	if cfg.EmbeddingKeepaliveInterval != 10*time.Minute {
		t.Errorf("keepalive interval = %v", cfg.EmbeddingKeepaliveInterval)
	}
	if cfg.Debug {
		t.Error("Debug should default to false")
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("ELASTICSEARCH_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "oa-key")
	t.Setenv("EMBEDDING_API_ENDPOINT", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing keys")
	}
	for _, key := range []string{"ELASTICSEARCH_API_KEY", "EMBEDDING_API_ENDPOINT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should name %s: %v", key, err)
		}
	}
}

func TestLoadStripsQuotes(t *testing.T) {
	setRequired(t)
	t.Setenv("ELASTICSEARCH_URL", `"http://es:9200"`)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ElasticsearchURL != "http://es:9200" {
		t.Errorf("ElasticsearchURL = %q", cfg.ElasticsearchURL)
	}
}

func TestLoadBadNumbersFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("RATELIMIT_PER_MINUTE", "plenty")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RateLimitPerMinute != 60 {
		t.Errorf("RateLimitPerMinute = %d", cfg.RateLimitPerMinute)
	}
}

func TestLoadInvalidBounds(t *testing.T) {
	setRequired(t)
	t.Setenv("MIN_QUESTION_LENGTH", "100")
	t.Setenv("MAX_QUESTION_LENGTH", "10")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for inverted bounds")
	}
}
