// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kristoman-rikardo/standardgpt/datatypes"
)

const (
	// DefaultKeepaliveInterval is how often an idle subscriber receives a
	// keepalive event so proxies do not drop the connection.
	DefaultKeepaliveInterval = 30 * time.Second

	// DefaultSubscriberCap bounds one subscription's total lifetime.
	DefaultSubscriberCap = 30 * time.Minute

	// sessionIdleExpiry removes sessions nobody touched in a while. Empty
	// sessions get triple that so a slow caller can still start a query.
	sessionIdleExpiry = 10 * time.Minute
)

// StagePercent maps each pipeline stage to its canonical progress percent.
var StagePercent = map[string]int{
	datatypes.StageStarted:    5,
	datatypes.StageValidation: 10,
	datatypes.StageAnalysis:   15,
	datatypes.StageExtraction: 25,
	datatypes.StageRouting:    35,
	datatypes.StageSearch:     45,
	datatypes.StageAnswer:     85,
	datatypes.StageComplete:   100,
}

type session struct {
	mu           sync.Mutex
	events       []datatypes.ProgressEvent
	closed       bool
	notify       chan struct{}
	lastActivity time.Time
	createdAt    time.Time
}

func (s *session) publish(ev datatypes.ProgressEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if ev.Terminal() {
		s.closed = true
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// eventsFrom returns the events published at or after index idx, and
// whether the producer has finished.
func (s *session) eventsFrom(idx int) ([]datatypes.ProgressEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx >= len(s.events) {
		return nil, s.closed
	}
	out := make([]datatypes.ProgressEvent, len(s.events)-idx)
	copy(out, s.events[idx:])
	return out, s.closed
}

// Bus is the per-session publish/subscribe channel between one pipeline
// producer and one streaming consumer.
//
// # Description
//
// Each session holds an append-only event log. A subscriber first receives
// a connected event, then a replay of everything published before it
// attached, then live events in publication order. Losing the subscriber
// never blocks the producer: publishes only append and signal.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Session creation and
// replacement are atomic; a replaced session never leaks events into its
// successor.
type Bus struct {
	mu       sync.Mutex
	sessions map[string]*session

	KeepaliveInterval time.Duration
	SubscriberCap     time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func NewBus() *Bus {
	b := &Bus{
		sessions:          make(map[string]*session),
		KeepaliveInterval: DefaultKeepaliveInterval,
		SubscriberCap:     DefaultSubscriberCap,
		stop:              make(chan struct{}),
	}
	go b.janitor()
	return b
}

// CreateSession registers id, atomically replacing any prior session with
// the same id.
func (b *Bus) CreateSession(id string) {
	now := time.Now()
	b.mu.Lock()
	b.sessions[id] = &session{
		notify:       make(chan struct{}, 1),
		lastActivity: now,
		createdAt:    now,
	}
	b.mu.Unlock()
}

// Publish appends ev to the session's log. Publishing to an unknown
// session is a no-op; the producer may outlive an expired session.
func (b *Bus) Publish(id string, ev datatypes.ProgressEvent) {
	b.mu.Lock()
	s := b.sessions[id]
	b.mu.Unlock()
	if s == nil {
		return
	}
	s.publish(ev)
}

// Stage publishes a progress event with the canonical percent for stage,
// overridable for the subdivided search range.
func (b *Bus) Stage(id, stage, message string, emoji string) {
	b.Publish(id, datatypes.StageEvent(stage, message, StagePercent[stage], emoji))
}

// Subscribe attaches the single consumer for id. The returned channel is
// closed when the producer finishes, the caps are hit, or ctx is
// cancelled.
func (b *Bus) Subscribe(ctx context.Context, id string) (<-chan datatypes.ProgressEvent, error) {
	b.mu.Lock()
	s := b.sessions[id]
	b.mu.Unlock()
	if s == nil {
		return nil, fmt.Errorf("unknown stream session %q", id)
	}

	ch := make(chan datatypes.ProgressEvent, 32)
	go b.pump(ctx, id, s, ch)
	return ch, nil
}

func (b *Bus) pump(ctx context.Context, id string, s *session, ch chan<- datatypes.ProgressEvent) {
	defer close(ch)
	defer b.remove(id, s)

	select {
	case ch <- datatypes.ConnectedEvent(id):
	case <-ctx.Done():
		return
	}

	keepalive := time.NewTicker(b.KeepaliveInterval)
	defer keepalive.Stop()
	lifetime := time.NewTimer(b.SubscriberCap)
	defer lifetime.Stop()

	idx := 0
	for {
		events, closed := s.eventsFrom(idx)
		for _, ev := range events {
			select {
			case ch <- ev:
				idx++
			case <-ctx.Done():
				return
			}
			if ev.Terminal() {
				return
			}
		}
		if closed {
			return
		}

		select {
		case <-s.notify:
		case <-keepalive.C:
			select {
			case ch <- datatypes.ProgressEvent{Type: datatypes.EventKeepalive}:
			case <-ctx.Done():
				return
			}
		case <-lifetime.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

// remove drops the session unless it was already replaced by a newer one.
func (b *Bus) remove(id string, s *session) {
	b.mu.Lock()
	if b.sessions[id] == s {
		delete(b.sessions, id)
	}
	b.mu.Unlock()
}

// Close stops the janitor.
func (b *Bus) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
}

// SessionCount is exposed for diagnostics.
func (b *Bus) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *Bus) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.expire()
		case <-b.stop:
			return
		}
	}
}

func (b *Bus) expire() {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastActivity)
		empty := len(s.events) == 0
		s.mu.Unlock()
		// Empty sessions stay open longer to support follow-up queries.
		limit := sessionIdleExpiry
		if empty {
			limit = 3 * sessionIdleExpiry
		}
		if idle > limit {
			delete(b.sessions, id)
		}
	}
}
