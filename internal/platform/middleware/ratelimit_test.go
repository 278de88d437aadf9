package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func rateLimitedHandler(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	handler := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	handler := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})

	for i := 0; i < 2; i++ {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	rec := httptest.NewRecorder()
	err := handler(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	if err == nil {
		t.Fatal("expected error for rate-limited request")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}

	retryVal, parseErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if parseErr != nil || retryVal < 1 {
		t.Errorf("expected Retry-After >= 1, got %q", rec.Header().Get("Retry-After"))
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", got)
	}
}

func TestRateLimit_ZeroRateExhausted(t *testing.T) {
	e := echo.New()
	handler := rateLimitedHandler(RateLimitConfig{RequestsPerSecond: 0, BurstSize: 1})

	_ = handler(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err == nil {
		t.Fatal("expected rejection once the burst is spent")
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimit_PerKeyIsolation(t *testing.T) {
	e := echo.New()
	handler := rateLimitedHandler(RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
		KeyFunc:           func(c echo.Context) string { return c.Request().Header.Get("X-Client") },
	})

	request := func(client string) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Client", client)
		return handler(e.NewContext(req, httptest.NewRecorder()))
	}

	if err := request("bloc"); err != nil {
		t.Fatalf("bloc first request: expected no error, got %v", err)
	}
	if err := request("bloc"); err == nil {
		t.Fatal("bloc second request: expected rate limit error")
	}
	if err := request("pharmacie"); err != nil {
		t.Fatalf("pharmacie first request: expected no error, got %v", err)
	}
}

func TestRateLimit_DefaultConfigs(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 || cfg.BurstSize != 200 {
		t.Errorf("unexpected default config %+v", cfg)
	}
	login := LoginRateLimitConfig()
	if login.RequestsPerSecond >= cfg.RequestsPerSecond || login.BurstSize >= cfg.BurstSize {
		t.Errorf("login limits should be stricter than defaults: %+v", login)
	}
}

func TestLimiterStore_EvictsIdleKeys(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Now()

	l1 := store.get("key1", now)
	if l2 := store.get("key1", now); l1 != l2 {
		t.Error("expected same limiter for same key")
	}
	store.get("key2", now)
	if store.size() != 2 {
		t.Fatalf("expected 2 limiters, got %d", store.size())
	}

	store.get("key3", now.Add(2*time.Minute))
	if store.size() != 1 {
		t.Errorf("expected idle limiters to be evicted, got %d", store.size())
	}
}
