// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/kristoman-rikardo/standardgpt/datatypes"
)

// SSEWriter writes Server-Sent Events to an HTTP response.
//
// # Description
//
// SSEWriter hides the SSE wire format behind typed methods. Events go out
// as "data: {json}\n\n" frames; the event type travels inside the JSON
// payload so browser EventSource clients only need an onmessage handler.
// Every write flushes immediately.
//
// # Thread Safety
//
// Implementations are safe for concurrent use. The stream handler writes
// replayed events and keepalives from the same goroutine, but producers
// sharing a writer must not interleave partial frames.
type SSEWriter interface {
	// WriteRetry emits the reconnection delay directive. Sent once, before
	// any event.
	WriteRetry(ms int) error

	// WriteEvent serialises and writes one event frame.
	WriteEvent(ev datatypes.ProgressEvent) error

	// WriteComment writes an SSE comment line, invisible to EventSource
	// clients but enough to keep proxies from dropping the connection.
	WriteComment(text string) error
}

type sseWriter struct {
	mu      sync.Mutex
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter wraps w, which must support http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) WriteRetry(ms int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.writer, "retry: %d\n\n", ms); err != nil {
		return fmt.Errorf("write retry directive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteEvent(ev datatypes.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteComment(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.writer, ": %s\n\n", text); err != nil {
		return fmt.Errorf("write comment: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders prepares the response for event streaming. Must run before
// the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

var _ SSEWriter = (*sseWriter)(nil)
