// Package memory holds the in-process conversation memory. State is
// process-wide; scale-out deployments need session affinity or an external
// store.
package memory

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	// NoMemory is the sentinel consumers receive for absent or empty
	// sessions. Memory-aware branches must be skipped when they see it.
	NoMemory = "0"

	maxExchanges    = 5
	maxSystemLength = 1000
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Exchange is one user/system pair in a session's history.
type Exchange struct {
	User      string    `json:"user"`
	System    string    `json:"system"`
	Timestamp time.Time `json:"timestamp"`
}

type session struct {
	exchanges   []Exchange
	lastTouched time.Time
}

// Store is the per-session conversation memory. All access goes through
// one mutex; there are no cross-session locks.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*session)}
}

// Append records an exchange, trimming both sides and truncating the
// system text. Only the five most recent exchanges are kept.
func (s *Store) Append(sessionID, user, system string) {
	user = strings.TrimSpace(user)
	system = strings.TrimSpace(system)
	if len([]rune(system)) > maxSystemLength {
		system = string([]rune(system)[:maxSystemLength])
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		sess = &session{}
		s.sessions[sessionID] = sess
	}
	sess.exchanges = append(sess.exchanges, Exchange{User: user, System: system, Timestamp: time.Now()})
	if len(sess.exchanges) > maxExchanges {
		sess.exchanges = sess.exchanges[len(sess.exchanges)-maxExchanges:]
	}
	sess.lastTouched = time.Now()
}

// Get returns the formatted memory for prompt injection: alternating
// "USER:"/"SYSTEM:" lines in chronological order, or the NoMemory sentinel.
func (s *Store) Get(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil || len(sess.exchanges) == 0 {
		return NoMemory
	}

	var lines []string
	for _, ex := range sess.exchanges {
		lines = append(lines, "USER: "+normalise(ex.User))
		lines = append(lines, "SYSTEM: "+normalise(ex.System))
	}
	return strings.Join(lines, "\n")
}

// Exchanges returns a copy of the session's history, oldest first.
func (s *Store) Exchanges(sessionID string) []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		return nil
	}
	out := make([]Exchange, len(sess.exchanges))
	copy(out, sess.exchanges)
	return out
}

// Clear removes the session entirely.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Rebuild replaces the session's history from persisted messages, applying
// the same trim/truncate/cap rules as Append.
func (s *Store) Rebuild(sessionID string, exchanges []Exchange) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	for _, ex := range exchanges {
		s.Append(sessionID, ex.User, ex.System)
	}
}

// Stats reports the exchange count and last activity for one session.
func (s *Store) Stats(sessionID string) (count int, lastTouched time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		return 0, time.Time{}
	}
	return len(sess.exchanges), sess.lastTouched
}

func normalise(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}
