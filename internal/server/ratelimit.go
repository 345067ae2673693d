package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"vidhub/internal/api"
	"vidhub/internal/observability/logging"
)

const defaultRateWindow = time.Minute

// RateLimitConfig limits API requests per client address. A zero
// RequestsPerWindow disables limiting. When Redis is set the counters are
// shared across instances; Redis failures fall back to local buckets.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Redis             redis.Cmdable
	// TrustForwardedFor takes the client address from X-Forwarded-For.
	TrustForwardedFor bool
}

type rateLimiter struct {
	limit        int
	window       time.Duration
	trustProxy   bool
	store        tokenStore
	logger       *slog.Logger
	localMu      sync.Mutex
	localBuckets map[string]*ipLimiter
}

type ipLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

type tokenStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

func newRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *rateLimiter {
	if cfg.RequestsPerWindow <= 0 {
		return nil
	}
	rl := &rateLimiter{
		limit:        cfg.RequestsPerWindow,
		window:       cfg.Window,
		trustProxy:   cfg.TrustForwardedFor,
		logger:       logger,
		localBuckets: make(map[string]*ipLimiter),
	}
	if rl.window <= 0 {
		rl.window = defaultRateWindow
	}
	if cfg.Redis != nil {
		rl.store = newRedisStore(cfg.Redis)
	}
	return rl
}

// Allow reports whether the client identified by key may proceed and, when
// not, how long it should wait.
func (r *rateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if r == nil {
		return true, 0
	}
	if key == "" {
		key = "unknown"
	}
	if r.store != nil {
		allowed, retryAfter, err := r.store.Allow(ctx, "vidhub:ratelimit:"+key, r.limit, r.window)
		if err == nil {
			return allowed, retryAfter
		}
		if r.logger != nil {
			logging.WithContext(ctx, r.logger).Warn("rate limit store unavailable, using local buckets", "error", err)
		}
	}
	return r.allowLocal(key)
}

func (r *rateLimiter) allowLocal(key string) (bool, time.Duration) {
	r.localMu.Lock()
	limiter, exists := r.localBuckets[key]
	if !exists {
		rate := float64(r.limit) / r.window.Seconds()
		limiter = &ipLimiter{bucket: newTokenBucket(rate, r.limit)}
		r.localBuckets[key] = limiter
	}
	limiter.lastSeen = time.Now()
	r.cleanupLocked()
	r.localMu.Unlock()

	if limiter.bucket.Allow() {
		return true, 0
	}
	return false, limiter.bucket.wait()
}

func (r *rateLimiter) cleanupLocked() {
	cutoff := time.Now().Add(-2 * r.window)
	for key, limiter := range r.localBuckets {
		if limiter.lastSeen.Before(cutoff) {
			delete(r.localBuckets, key)
		}
	}
}

func (r *rateLimiter) clientKey(req *http.Request) string {
	if r.trustProxy {
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func rateLimitMiddleware(rl *rateLimiter, next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		allowed, retryAfter := rl.Allow(r.Context(), rl.clientKey(r))
		if !allowed {
			seconds := int(retryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			api.WriteStatus(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// wait estimates how long until the next token is available.
func (tb *tokenBucket) wait() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	missing := 1 - tb.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / tb.rate * float64(time.Second))
}

func (tb *tokenBucket) refillLocked() {
	now := time.Now()
	tb.tokens += now.Sub(tb.lastCheck).Seconds() * tb.rate
	tb.lastCheck = now
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}
