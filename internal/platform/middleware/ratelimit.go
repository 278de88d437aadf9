package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL evicts limiters for keys not seen for this long.
	IdleTTL time.Duration
	// KeyFunc selects the bucket for a request. Defaults to the client IP.
	KeyFunc func(echo.Context) string
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleTTL:           10 * time.Minute,
	}
}

// LoginRateLimitConfig allows a handful of passphrase attempts, then one
// every five seconds per client.
func LoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 0.2,
		BurstSize:         5,
		IdleTTL:           time.Hour,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &limiterStore{cfg: cfg, entries: make(map[string]*limiterEntry)}
}

func (s *limiterStore) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > s.cfg.IdleTTL {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) > s.cfg.IdleTTL {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RateLimit returns middleware that applies a token bucket per key.
// Rejected requests get 429 with a Retry-After header.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c echo.Context) string { return c.RealIP() }
	}
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			now := time.Now()
			lim := store.get(keyFunc(c), now)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			res := lim.ReserveN(now, 1)
			if !res.OK() {
				h.Set("X-RateLimit-Remaining", "0")
				h.Set("Retry-After", "1")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				h.Set("X-RateLimit-Remaining", "0")
				h.Set("Retry-After", strconv.Itoa(int(math.Max(1, math.Ceil(delay.Seconds())))))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			h.Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Max(0, lim.TokensAt(now)))))
			return next(c)
		}
	}
}
