package llm

import (
	"context"
	"errors"
)

// TokenFunc receives each streamed content delta. Returning an error stops
// the stream.
type TokenFunc func(token string) error

// Client is the chat-completion surface the pipeline depends on. Namespace
// selects the generation parameters and the cache TTL; prompt is the fully
// rendered user prompt.
type Client interface {
	// Complete performs a cache-aware single-shot call. kwargs participates
	// in cache keying only (conversation_memory scoping).
	Complete(ctx context.Context, namespace, prompt string, kwargs map[string]string) (string, error)

	// Stream performs a cache-bypassing streaming call, invoking fn for
	// every token until the provider signals completion.
	Stream(ctx context.Context, namespace, prompt string, fn TokenFunc) error
}

// GenerationError describes a failed provider call after retries were
// exhausted.
type GenerationError struct {
	Namespace  string
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *GenerationError) Error() string {
	return "llm " + e.Namespace + ": " + e.Message
}

// IsGenerationError reports whether err wraps a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
