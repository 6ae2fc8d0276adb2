package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newLimitedRouter mounts the recipe-shaped routes behind a limiter.
func newLimitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), rl.Handler())
	r.GET("/api/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "# metrics") })
	r.GET("/api/recipes", func(c *gin.Context) { c.JSON(http.StatusOK, []gin.H{}) })
	r.POST("/api/recipes", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.OPTIONS("/api/recipes", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func sendFrom(r http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = net.JoinHostPort(ip, "1000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestKeyByClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/recipes", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if key := KeyByClientIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("key = %q", key)
	}
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 2, Exempt: []string{"", "/api/health"}})
	if rl.burst != 1 {
		t.Fatalf("burst = %d, want 1", rl.burst)
	}
	if rl.ttl != defaultIdleTTL {
		t.Fatalf("ttl = %v", rl.ttl)
	}
	if rl.keyFn == nil {
		t.Fatal("key func not defaulted")
	}
	if len(rl.exempt) != 1 {
		t.Fatalf("exempt = %v, empty entries must be dropped", rl.exempt)
	}
}

func TestRateLimiter_ExemptRoutesNeverLimited(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{
		RPS:    0.001,
		Burst:  2,
		Exempt: []string{"/api/health", "/metrics"},
	})
	r := newLimitedRouter(rl)

	for i := 0; i < 5; i++ {
		if w := sendFrom(r, http.MethodGet, "/api/health", "192.0.2.10"); w.Code != http.StatusOK {
			t.Fatalf("health #%d: status %d", i+1, w.Code)
		}
		if w := sendFrom(r, http.MethodGet, "/metrics", "192.0.2.10"); w.Code != http.StatusOK {
			t.Fatalf("metrics #%d: status %d", i+1, w.Code)
		}
	}

	// Exempt traffic consumed nothing: the full burst is still available.
	for i := 0; i < 2; i++ {
		if w := sendFrom(r, http.MethodPost, "/api/recipes", "192.0.2.10"); w.Code != http.StatusCreated {
			t.Fatalf("create #%d: status %d", i+1, w.Code)
		}
	}
	if w := sendFrom(r, http.MethodPost, "/api/recipes", "192.0.2.10"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("create past burst: status %d", w.Code)
	}
	if w := sendFrom(r, http.MethodGet, "/api/health", "192.0.2.10"); w.Code != http.StatusOK {
		t.Fatalf("health after limit: status %d", w.Code)
	}
}

func TestRateLimiter_PreflightNotLimited(t *testing.T) {
	r := newLimitedRouter(NewRateLimiter(RateLimitOptions{RPS: 0.001, Burst: 1}))

	for i := 0; i < 3; i++ {
		if w := sendFrom(r, http.MethodOptions, "/api/recipes", "192.0.2.11"); w.Code != http.StatusNoContent {
			t.Fatalf("preflight #%d: status %d", i+1, w.Code)
		}
	}
	if w := sendFrom(r, http.MethodGet, "/api/recipes", "192.0.2.11"); w.Code != http.StatusOK {
		t.Fatalf("list after preflights: status %d", w.Code)
	}
}

func TestRateLimiter_SeparateBucketsPerIP(t *testing.T) {
	r := newLimitedRouter(NewRateLimiter(RateLimitOptions{RPS: 0.001, Burst: 1}))

	if sendFrom(r, http.MethodPost, "/api/recipes", "198.51.100.1").Code != http.StatusCreated ||
		sendFrom(r, http.MethodPost, "/api/recipes", "198.51.100.2").Code != http.StatusCreated {
		t.Fatal("first create per IP should pass")
	}
	if sendFrom(r, http.MethodPost, "/api/recipes", "198.51.100.1").Code != http.StatusTooManyRequests {
		t.Fatal("second create from the same IP should be limited")
	}
}

func TestRateLimiter_DeniedEnvelopeAndRetryAfter(t *testing.T) {
	// One token every 4s: the wait after the burst is roughly 4s.
	r := newLimitedRouter(NewRateLimiter(RateLimitOptions{RPS: 0.25, Burst: 1}))
	before := testutil.ToFloat64(rateLimited.WithLabelValues("/api/recipes"))

	_ = sendFrom(r, http.MethodPost, "/api/recipes", "198.51.100.7")
	w := sendFrom(r, http.MethodPost, "/api/recipes", "198.51.100.7")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}

	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || secs < 3 || secs > 4 {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if body["code"] != "too_many_requests" || body["error"] != "Rate limit exceeded" {
		t.Fatalf("body = %v", body)
	}
	if body["request_id"] == "" || body["request_id"] != w.Header().Get(requestIDHeader) {
		t.Fatalf("request_id = %q, header = %q", body["request_id"], w.Header().Get(requestIDHeader))
	}

	if got := testutil.ToFloat64(rateLimited.WithLabelValues("/api/recipes")) - before; got != 1 {
		t.Fatalf("http_rate_limited_total delta = %v", got)
	}
}

func TestRateLimiter_NoRefillAdvertisesLongWait(t *testing.T) {
	r := newLimitedRouter(NewRateLimiter(RateLimitOptions{RPS: 0, Burst: 1}))

	_ = sendFrom(r, http.MethodGet, "/api/recipes", "198.51.100.8")
	w := sendFrom(r, http.MethodGet, "/api/recipes", "198.51.100.8")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != strconv.Itoa(retryAfterNoRefill) {
		t.Fatalf("Retry-After = %q", got)
	}
}

func TestRateLimiter_DenialDoesNotDrainBucket(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 1, Burst: 1})
	r := newLimitedRouter(rl)

	_ = sendFrom(r, http.MethodPost, "/api/recipes", "198.51.100.9")
	for i := 0; i < 5; i++ {
		_ = sendFrom(r, http.MethodPost, "/api/recipes", "198.51.100.9")
	}

	// Rejected requests cancelled their reservations, so one token is back
	// within about a second rather than five.
	lim := rl.limiter("ip:198.51.100.9", time.Now())
	if d := lim.Reserve().Delay(); d > 1100*time.Millisecond {
		t.Fatalf("bucket drained by denials: next token in %v", d)
	}
}

func TestRateLimiter_ReplayBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(RateLimitOptions{RPS: 0.001, Burst: 1})
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("Idempotency-Key") != "" {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}, rl.Handler())
	r.POST("/api/recipes", func(c *gin.Context) { c.Status(http.StatusCreated) })

	post := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/recipes", nil)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if post("") != http.StatusCreated {
		t.Fatal("first create should pass")
	}
	if post("") != http.StatusTooManyRequests {
		t.Fatal("second create should be limited")
	}
	for i := 0; i < 3; i++ {
		if code := post("k-1"); code != http.StatusCreated {
			t.Fatalf("replay #%d: status %d", i+1, code)
		}
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if IsRateBypass(c) {
		t.Fatal("unset flag reported as bypass")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatal("non-bool flag reported as bypass")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatal("bypass flag ignored")
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	now := time.Now()

	first := rl.limiter("ip:a", now)
	if again := rl.limiter("ip:a", now); again != first {
		t.Fatal("bucket not reused for the same key")
	}
	_ = rl.limiter("ip:b", now.Add(30*time.Second))

	// Past the TTL for a but not for b.
	_ = rl.limiter("ip:c", now.Add(70*time.Second))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["ip:a"]; ok {
		t.Fatal("idle bucket survived the sweep")
	}
	if _, ok := rl.visitors["ip:b"]; !ok {
		t.Fatal("recent bucket was swept")
	}
	if _, ok := rl.visitors["ip:c"]; !ok {
		t.Fatal("new bucket missing")
	}
}
