package embedding

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultKeepaliveInterval is how long the external endpoint may sit idle
// before a ping is issued.
const DefaultKeepaliveInterval = 10 * time.Minute

// Keepalive pings the external embedding endpoint when it has been idle,
// so serverless model containers stay warm. Loopback endpoints are local
// processes with no cold start, so the daemon disables itself for them.
type Keepalive struct {
	client   *Client
	interval time.Duration

	mu           sync.Mutex
	lastActivity time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewKeepalive wires the daemon to the client's activity feed. Returns nil
// when the endpoint is unset, internal, or loopback; callers treat a nil
// Keepalive as disabled.
func NewKeepalive(client *Client, interval time.Duration) *Keepalive {
	if client == nil || !client.externalConfigured() || isLoopback(client.endpoint) {
		return nil
	}
	if interval <= 0 {
		interval = DefaultKeepaliveInterval
	}
	k := &Keepalive{
		client:       client,
		interval:     interval,
		lastActivity: time.Now(),
		stop:         make(chan struct{}),
	}
	client.OnActivity(k.touch)
	return k
}

// Start runs the idle check loop until Stop or ctx cancellation.
func (k *Keepalive) Start(ctx context.Context) {
	if k == nil {
		return
	}
	slog.Info("embedding keepalive started", "interval", k.interval)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			k.maybePing(ctx)
		case <-k.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (k *Keepalive) Stop() {
	if k == nil {
		return
	}
	k.stopOnce.Do(func() { close(k.stop) })
}

func (k *Keepalive) touch() {
	k.mu.Lock()
	k.lastActivity = time.Now()
	k.mu.Unlock()
}

func (k *Keepalive) idleFor() time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()
	return time.Since(k.lastActivity)
}

func (k *Keepalive) maybePing(ctx context.Context) {
	if k.idleFor() < k.interval {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if vec := k.client.embedExternal(pingCtx, "ping"); vec != nil {
		slog.Debug("embedding keepalive ping ok")
	} else {
		slog.Warn("embedding keepalive ping failed")
	}
	k.touch()
}

func isLoopback(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	// Hostnames like host.docker.internal can still resolve to loopback.
	// Best effort; an unresolvable host keeps the daemon on.
	addrs, err := net.LookupHost(host)
	if err != nil {
		return false
	}
	return allLoopback(addrs)
}

func allLoopback(addrs []string) bool {
	for _, addr := range addrs {
		ip := net.ParseIP(addr)
		if ip == nil || !ip.IsLoopback() {
			return false
		}
	}
	return len(addrs) > 0
}
