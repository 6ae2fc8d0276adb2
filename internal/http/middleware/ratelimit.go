// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the per-client token-bucket limiter that protects the
// recipe API. Buckets are keyed by client IP (golang.org/x/time/rate), idle
// buckets are swept periodically, and a few requests are never limited:
//
//   - exempt routes, such as the health check and /metrics, so probes and
//     scrapers cannot be starved by API traffic from the same address
//   - CORS preflights (OPTIONS), which carry no work
//   - idempotent replays flagged by IdempotencyValidator
//
// The limiter is process-local; it is abuse control, not authorization.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL = 10 * time.Minute
	// retryAfterNoRefill is advertised when the bucket can never refill (RPS 0).
	retryAfterNoRefill = 60
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByClientIP keys buckets by the client IP as resolved by Gin (honoring
// trusted proxy headers).
func KeyByClientIP() keyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	RPS   float64 // tokens per second; 0 allows only the initial burst
	Burst int     // bucket size; values <= 0 become 1
	Key   keyFunc // defaults to KeyByClientIP

	// Exempt lists route patterns (or literal paths for unmatched routes)
	// that are never limited, e.g. "/api/health".
	Exempt []string

	// IdleTTL is how long an unused bucket survives. Defaults to 10 minutes.
	IdleTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client. Safe for concurrent use.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	keyFn  keyFunc
	exempt map[string]struct{}
	ttl    time.Duration

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewRateLimiter builds a limiter ready to be installed with Handler().
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	rl := &RateLimiter{
		rps:       rate.Limit(opts.RPS),
		burst:     opts.Burst,
		keyFn:     opts.Key,
		exempt:    make(map[string]struct{}, len(opts.Exempt)),
		ttl:       opts.IdleTTL,
		visitors:  make(map[string]*visitor),
		lastSweep: time.Now(),
	}
	if rl.burst <= 0 {
		rl.burst = 1
	}
	if rl.keyFn == nil {
		rl.keyFn = KeyByClientIP()
	}
	if rl.ttl <= 0 {
		rl.ttl = defaultIdleTTL
	}
	for _, p := range opts.Exempt {
		if p != "" {
			rl.exempt[p] = struct{}{}
		}
	}
	return rl
}

// limiter returns the bucket for key, creating it if needed. Idle buckets are
// swept at most once per TTL, before the lookup, so a stale bucket is never
// revived by its own request.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.ttl {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (rl *RateLimiter) isExempt(c *gin.Context) bool {
	if c.Request.Method == http.MethodOptions {
		return true
	}
	_, ok := rl.exempt[routeOf(c)]
	return ok
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay, which is served without consuming a token.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// retryAfter converts a wait into whole seconds, never less than 1.
func retryAfter(d time.Duration) int {
	if s := int(math.Ceil(d.Seconds())); s > 1 {
		return s
	}
	return 1
}

// Handler returns the limiting middleware. A denied request gets
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: <seconds until a token is available>
//	{"request_id": "...", "code": "too_many_requests", "error": "Rate limit exceeded"}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.isExempt(c) || IsRateBypass(c) {
			c.Next()
			return
		}

		now := time.Now()
		res := rl.limiter(rl.keyFn(c), now).ReserveN(now, 1)
		wait := retryAfterNoRefill
		if res.OK() {
			delay := res.DelayFrom(now)
			if delay == 0 {
				c.Next()
				return
			}
			// Denied requests must not hold a token.
			res.CancelAt(now)
			wait = retryAfter(delay)
		}

		observeRateLimited(c.FullPath())
		c.Header("Retry-After", strconv.Itoa(wait))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"error":      "Rate limit exceeded",
		})
	}
}
