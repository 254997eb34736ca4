package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/mark3748/helpdesk-sla/internal/metrics"
)

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := New(rdb, 2, time.Minute, "scan:")
	r := gin.New()
	r.Use(l.Middleware("/sla/scan", func(c *gin.Context) string { return "user-1" }))
	r.POST("/sla/scan", func(c *gin.Context) { c.String(200, "ok") })
	before := testutil.ToFloat64(metrics.RateLimitRejectionsTotal.WithLabelValues("/sla/scan"))

	do := func() *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sla/scan", nil))
		return rr
	}
	for i := 0; i < 2; i++ {
		if rr := do(); rr.Code != 200 {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	rr := do()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if ra := rr.Header().Get("Retry-After"); ra != "30" {
		t.Fatalf("expected Retry-After 30, got %q", ra)
	}
	if got := testutil.ToFloat64(metrics.RateLimitRejectionsTotal.WithLabelValues("/sla/scan")) - before; got != 1 {
		t.Fatalf("expected 1 rejection, got %v", got)
	}
	if !mr.Exists("rl:scan:user-1") {
		t.Fatal("expected bucket key with prefix")
	}
	// the bucket key expires after a full window
	mr.FastForward(time.Minute)
	if rr := do(); rr.Code != 200 {
		t.Fatalf("expected 200 after window, got %d", rr.Code)
	}
}

func TestAllowWithoutRedis(t *testing.T) {
	l := New(nil, 1, time.Second, "")
	for i := 0; i < 3; i++ {
		ok, err := l.Allow(t.Context(), "k")
		if err != nil || !ok {
			t.Fatalf("expected allow without redis, got %v %v", ok, err)
		}
	}
}
