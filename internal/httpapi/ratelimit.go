package httpapi

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter enforces per-IP token-bucket limits on the challenge endpoints.
// Each challenge spins up a real WhatsApp connection, so unthrottled
// clients could exhaust the messaging backend long before the HTTP server.
type ipLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// newIPLimiter converts requests-per-minute into a token bucket per IP.
// rpm <= 0 disables limiting entirely.
func newIPLimiter(rpm, burst int) *ipLimiter {
	if burst <= 0 {
		burst = 5
	}
	l := &ipLimiter{burst: burst, buckets: make(map[string]*bucket)}
	if rpm > 0 {
		l.limit = rate.Limit(float64(rpm) / 60.0)
		go l.janitor()
	}
	return l
}

func (l *ipLimiter) allow(ip string) bool {
	if l.limit == 0 {
		return true
	}

	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	if !b.lim.Allow() {
		slog.Warn("request rate limited", "ip", ip)
		return false
	}
	return true
}

// janitor drops buckets idle for longer than ten minutes.
func (l *ipLimiter) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		l.mu.Lock()
		for ip, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, ip)
			}
		}
		l.mu.Unlock()
	}
}

// clientIP extracts the caller's IP, ignoring the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
