package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kristoman-rikardo/standardgpt/cache"
)

// Embedder produces a dense vector for a text, or nil when every provider
// failed. The pipeline continues without a vector in that case.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Progressive per-attempt timeouts against the external endpoint. Cold
// model containers can take the better part of a minute to wake up.
var attemptTimeouts = []time.Duration{30 * time.Second, 45 * time.Second, 60 * time.Second}

const internalEmbeddingModel = openai.SmallEmbedding3

// Client queries an external embedding HTTP service with an OpenAI
// embeddings fallback. Vectors are cached per provider.
type Client struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
	cache    cache.Store
	internal *openai.Client
	activity func()
}

var _ Embedder = (*Client)(nil)

// NewClient builds the embedding client. endpoint may be empty or the
// literal "INTERNAL" to use only the OpenAI fallback. openaiKey may be
// empty, disabling the fallback.
func NewClient(endpoint, apiKey, openaiKey string, vectorCache cache.Store) *Client {
	c := &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpc:    &http.Client{},
		cache:    vectorCache,
		activity: func() {},
	}
	if openaiKey != "" {
		c.internal = openai.NewClient(openaiKey)
	}
	return c
}

// OnActivity registers a callback fired after every successful external
// embed. The keepalive daemon uses it to reset its idle clock.
func (c *Client) OnActivity(fn func()) {
	if fn != nil {
		c.activity = fn
	}
}

func (c *Client) externalConfigured() bool {
	return c.endpoint != "" && c.endpoint != "INTERNAL"
}

// Embed returns a vector for text, or nil if neither the external endpoint
// nor the internal fallback produced one.
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	if text == "" {
		return nil
	}

	if c.externalConfigured() {
		key := cache.EmbeddingKey("external", text)
		if cached, ok := c.cache.Get(key); ok {
			if vec, isVec := cached.([]float32); isVec {
				return vec
			}
		}
		if vec := c.embedExternal(ctx, text); vec != nil {
			c.cache.Set(key, vec, 0)
			c.activity()
			return vec
		}
	}

	return c.embedInternal(ctx, text)
}

func (c *Client) embedExternal(ctx context.Context, text string) []float32 {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil
	}

	for attempt, timeout := range attemptTimeouts {
		vec, err := c.tryExternal(ctx, payload, timeout)
		if err == nil {
			return vec
		}
		slog.Warn("embedding request failed",
			"attempt", attempt+1,
			"timeout", timeout,
			"error", err)
		if ctx.Err() != nil {
			return nil
		}
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return nil
		}
	}
	return nil
}

// statusError carries the upstream HTTP status so the retry loop can stop
// on responses another attempt cannot change.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embedding service returned status %d", e.status)
}

func (e *statusError) retryable() bool {
	switch e.status {
	case http.StatusBadRequest, http.StatusUnauthorized,
		http.StatusForbidden, http.StatusNotFound,
		http.StatusUnprocessableEntity:
		return false
	}
	return true
}

func (c *Client) tryExternal(ctx context.Context, payload []byte, timeout time.Duration) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading embedding response: %w", err)
	}
	vec, err := parseVector(body)
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (c *Client) embedInternal(ctx context.Context, text string) []float32 {
	if c.internal == nil {
		return nil
	}
	key := cache.EmbeddingKey("internal", text)
	if cached, ok := c.cache.Get(key); ok {
		if vec, isVec := cached.([]float32); isVec {
			return vec
		}
	}

	resp, err := c.internal.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: internalEmbeddingModel,
	})
	if err != nil || len(resp.Data) == 0 {
		slog.Warn("internal embedding fallback failed", "error", err)
		return nil
	}
	vec := resp.Data[0].Embedding
	c.cache.Set(key, vec, 0)
	return vec
}

// parseVector accepts the response shapes seen across embedding service
// versions, in order: {"vectors":[[...]]}, {"vector":[...]},
// {"data":[{"embedding":[...]}]}, and a bare array. First match wins.
func parseVector(body []byte) ([]float32, error) {
	var envelope struct {
		Vectors [][]float32 `json:"vectors"`
		Vector  []float32   `json:"vector"`
		Data    []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Vectors) > 0 && len(envelope.Vectors[0]) > 0 {
			return envelope.Vectors[0], nil
		}
		if len(envelope.Vector) > 0 {
			return envelope.Vector, nil
		}
		if len(envelope.Data) > 0 && len(envelope.Data[0].Embedding) > 0 {
			return envelope.Data[0].Embedding, nil
		}
	}

	var bare []float32
	if err := json.Unmarshal(body, &bare); err == nil && len(bare) > 0 {
		return bare, nil
	}
	return nil, fmt.Errorf("unrecognised embedding response shape")
}
