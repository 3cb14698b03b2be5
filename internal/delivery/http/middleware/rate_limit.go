package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"cod-fulfillment/pkg/utils"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per caller. Callers with a valid token
// are keyed by subject, so agents behind one depot NAT do not share a bucket.
// Anonymous callers are keyed by client IP.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit     rate.Limit
	burst     int
	clientTTL time.Duration
	cancel    context.CancelFunc
	now       func() time.Time
}

// NewRateLimiter starts a limiter whose idle buckets are dropped every
// cleanupPeriod once unused for clientTTL. Stop it with Shutdown.
func NewRateLimiter(ctx context.Context, limit rate.Limit, burst int, cleanupPeriod, clientTTL time.Duration) *RateLimiter {
	ctx, cancel := context.WithCancel(ctx)
	rl := &RateLimiter{
		buckets:   make(map[string]*bucket),
		limit:     limit,
		burst:     burst,
		clientTTL: clientTTL,
		cancel:    cancel,
		now:       time.Now,
	}
	go rl.evictLoop(ctx, cleanupPeriod)
	return rl
}

func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.limiterFor(callerKey(r))
			res := limiter.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				utils.WriteError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// callerKey prefers the token subject and falls back to the client address.
func callerKey(r *http.Request) string {
	if claims, err := utils.ExtractClaims(r); err == nil {
		return "sub:" + claims.UserID
	}
	return "ip:" + getClientIP(r)
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = rl.now()
	return b.limiter
}

func (rl *RateLimiter) evictLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-ctx.Done():
			return
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.clientTTL)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Shutdown stops the eviction goroutine.
func (rl *RateLimiter) Shutdown() {
	rl.cancel()
}
