package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kristoman-rikardo/standardgpt/cache"
)

func TestParseVector(t *testing.T) {
	cases := []struct {
		name string
		body string
		want float32
	}{
		{"vectors matrix", `{"vectors":[[0.1,0.2]]}`, 0.1},
		{"single vector", `{"vector":[0.3,0.4]}`, 0.3},
		{"openai data shape", `{"data":[{"embedding":[0.5,0.6]}]}`, 0.5},
		{"bare array", `[0.7,0.8]`, 0.7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vec, err := parseVector([]byte(tc.body))
			if err != nil {
				t.Fatalf("parseVector: %v", err)
			}
			if len(vec) != 2 || vec[0] != tc.want {
				t.Errorf("got %v", vec)
			}
		})
	}

	t.Run("unknown shape", func(t *testing.T) {
		if _, err := parseVector([]byte(`{"nope":true}`)); err == nil {
			t.Error("expected error for unknown shape")
		}
	})
}

func TestEmbedExternalAndCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth header = %q", got)
		}
		w.Write([]byte(`{"vectors":[[1.0,2.0,3.0]]}`))
	}))
	defer srv.Close()

	vectorCache := cache.New(time.Minute)
	defer vectorCache.Close()
	client := NewClient(srv.URL, "secret", "", vectorCache)

	vec := client.Embed(context.Background(), "vindlast på tak")
	if len(vec) != 3 || vec[0] != 1.0 {
		t.Fatalf("got %v", vec)
	}

	// Second call must come from cache.
	client.Embed(context.Background(), "vindlast på tak")
	if calls.Load() != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls.Load())
	}
}

func TestEmbedFailureReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	vectorCache := cache.New(time.Minute)
	defer vectorCache.Close()
	// No OpenAI key, so no internal fallback either.
	client := NewClient(srv.URL, "", "", vectorCache)

	if vec := client.Embed(context.Background(), "noe"); vec != nil {
		t.Errorf("expected nil vector, got %v", vec)
	}
}

func TestEmbedAuthFailureSkipsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	vectorCache := cache.New(time.Minute)
	defer vectorCache.Close()
	client := NewClient(srv.URL, "wrong", "", vectorCache)

	if vec := client.Embed(context.Background(), "noe"); vec != nil {
		t.Errorf("expected nil vector, got %v", vec)
	}
	// A rejected key does not get better on retry.
	if calls.Load() != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls.Load())
	}
}

func TestStatusErrorRetryable(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
	}
	for _, tc := range cases {
		se := &statusError{status: tc.status}
		if got := se.retryable(); got != tc.want {
			t.Errorf("retryable(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestEmbedEmptyText(t *testing.T) {
	vectorCache := cache.New(time.Minute)
	defer vectorCache.Close()
	client := NewClient("http://example.invalid", "", "", vectorCache)
	if vec := client.Embed(context.Background(), ""); vec != nil {
		t.Errorf("expected nil for empty text, got %v", vec)
	}
}

func TestKeepaliveDisabledForLoopback(t *testing.T) {
	vectorCache := cache.New(time.Minute)
	defer vectorCache.Close()

	for _, endpoint := range []string{"http://localhost:8080/embed", "http://127.0.0.1/embed", "", "INTERNAL"} {
		client := NewClient(endpoint, "", "", vectorCache)
		if k := NewKeepalive(client, time.Minute); k != nil {
			t.Errorf("keepalive should be disabled for %q", endpoint)
		}
	}

	client := NewClient("https://embeddings.example.com/embed", "", "", vectorCache)
	if k := NewKeepalive(client, time.Minute); k == nil {
		t.Error("keepalive should be enabled for remote endpoint")
	}
}

func TestAllLoopback(t *testing.T) {
	cases := []struct {
		name  string
		addrs []string
		want  bool
	}{
		{"ipv4 loopback", []string{"127.0.0.1"}, true},
		{"ipv6 loopback", []string{"::1"}, true},
		{"mixed loopback", []string{"127.0.0.1", "::1"}, true},
		{"public address", []string{"93.184.216.34"}, false},
		{"loopback plus public", []string{"127.0.0.1", "10.0.0.5"}, false},
		{"unparsable", []string{"not-an-ip"}, false},
		{"empty", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := allLoopback(tc.addrs); got != tc.want {
				t.Errorf("allLoopback(%v) = %v, want %v", tc.addrs, got, tc.want)
			}
		})
	}
}
