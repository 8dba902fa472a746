package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// KeyFunc derives the rate limit bucket for a request.
type KeyFunc func(r *http.Request) string

// window holds counters for the current and previous fixed windows. The
// effective count interpolates the previous one by its remaining overlap.
type window struct {
	prev, curr float64
	start      time.Time
}

// Limiter is a sliding window rate limiter keyed by string.
type Limiter struct {
	max    int
	period time.Duration

	mu      sync.Mutex
	buckets map[string]*window
}

// Decision is the outcome of Limiter.Allow.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// NewLimiter allows limit requests per period for each key.
func NewLimiter(limit int, period time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if period <= 0 {
		period = time.Minute
	}
	return &Limiter{
		max:     limit,
		period:  period,
		buckets: make(map[string]*window),
	}
}

// Allow records a request for key at now unless the key is over its limit.
func (l *Limiter) Allow(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.buckets[key]
	if !ok {
		w = &window{start: now.Truncate(l.period)}
		l.buckets[key] = w
	}

	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*l.period:
		w.prev, w.curr = 0, 0
		w.start = now.Truncate(l.period)
	case elapsed >= l.period:
		w.prev, w.curr = w.curr, 0
		w.start = w.start.Add(l.period)
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.period)
	effective := w.prev*math.Max(overlap, 0) + w.curr
	d := Decision{ResetAt: w.start.Add(l.period)}
	if effective >= float64(l.max) {
		return d
	}

	w.curr++
	d.Allowed = true
	d.Remaining = max(int(float64(l.max)-effective-1), 0)
	return d
}

// Evict drops buckets that no longer influence any decision.
func (l *Limiter) Evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.buckets {
		if now.Sub(w.start) >= 2*l.period {
			delete(l.buckets, key)
		}
	}
}

// Run evicts stale buckets every two periods until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * l.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Evict(now)
		}
	}
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Middleware enforces the limit per key. Every response carries
// X-RateLimit-* headers; rejected requests get 429 with Retry-After. A nil
// key falls back to ClientIP.
func (l *Limiter) Middleware(key KeyFunc) Middleware {
	if key == nil {
		key = ClientIP
	}
	limit := strconv.Itoa(l.max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			k := key(r)
			d := l.Allow(k, now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retry := max(d.ResetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				zctx.From(r.Context()).Debug("Rate limit exceeded", zap.String("key", k))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the
// RemoteAddr host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
