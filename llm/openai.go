package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kristoman-rikardo/standardgpt/cache"
	"github.com/kristoman-rikardo/standardgpt/prompts"
)

const (
	maxCallRetries    = 3
	initialRetryDelay = 1 * time.Second
	perCallTimeout    = 30 * time.Second
)

// OpenAIClient implements Client against the OpenAI chat-completion API.
type OpenAIClient struct {
	api         *openai.Client
	cache       cache.Store
	model       string
	answerModel string
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient builds the client. answerModel may be empty, in which
// case the default model also serves the answer namespace.
func NewOpenAIClient(apiKey, model, answerModel string, promptCache cache.Store) *OpenAIClient {
	return &OpenAIClient{
		api:         openai.NewClient(apiKey),
		cache:       promptCache,
		model:       model,
		answerModel: answerModel,
	}
}

func (c *OpenAIClient) modelFor(namespace string) string {
	if namespace == prompts.NamespaceAnswer && c.answerModel != "" {
		return c.answerModel
	}
	return c.model
}

func (c *OpenAIClient) Complete(ctx context.Context, namespace, prompt string, kwargs map[string]string) (string, error) {
	cfg := prompts.ConfigFor(namespace)
	key := cache.Key(namespace, prompt, kwargs)

	if cached, ok := c.cache.Get(key); ok {
		if text, isString := cached.(string); isString {
			return text, nil
		}
	}

	req := openai.ChatCompletionRequest{
		Model: c.modelFor(namespace),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cfg.SystemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	var lastErr error
	delay := initialRetryDelay
	for attempt := 1; attempt <= maxCallRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
		resp, err := c.api.CreateChatCompletion(callCtx, req)
		cancel()
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", &GenerationError{Namespace: namespace, Message: "empty choice list from provider"}
			}
			text := strings.TrimSpace(resp.Choices[0].Message.Content)
			c.cache.Set(key, text, cfg.TTL)
			return text, nil
		}

		lastErr = err
		status, retryable := classify(err)
		if !retryable {
			return "", &GenerationError{Namespace: namespace, StatusCode: status, Message: err.Error()}
		}
		slog.Warn("llm call failed, retrying",
			"namespace", namespace,
			"attempt", attempt,
			"status", status,
			"error", err)
		if attempt < maxCallRetries {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	status, _ := classify(lastErr)
	return "", &GenerationError{
		Namespace:  namespace,
		StatusCode: status,
		Message:    fmt.Sprintf("exhausted %d attempts: %v", maxCallRetries, lastErr),
		Retryable:  true,
	}
}

func (c *OpenAIClient) Stream(ctx context.Context, namespace, prompt string, fn TokenFunc) error {
	cfg := prompts.ConfigFor(namespace)
	req := openai.ChatCompletionRequest{
		Model: c.modelFor(namespace),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cfg.SystemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Stream:      true,
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		status, retryable := classify(err)
		return &GenerationError{Namespace: namespace, StatusCode: status, Message: err.Error(), Retryable: retryable}
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			status, retryable := classify(err)
			return &GenerationError{Namespace: namespace, StatusCode: status, Message: err.Error(), Retryable: retryable}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := fn(delta); err != nil {
				return err
			}
		}
	}
}

// classify maps a provider error to an HTTP-ish status and whether a retry
// can help. Timeouts and 5xx/429 are transient; auth and schema errors are
// not.
func classify(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return apiErr.HTTPStatusCode, true
		default:
			return apiErr.HTTPStatusCode, false
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 0, true
	}
	if errors.Is(err, context.Canceled) {
		return 0, false
	}
	// Connection resets and DNS hiccups come through as plain errors.
	return 0, true
}
