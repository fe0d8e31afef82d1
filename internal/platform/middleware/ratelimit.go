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

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// KeyFunc picks the limiter for a request. Defaults to the client IP.
	KeyFunc func(c echo.Context) string
	// IdleTTL forgets clients unseen for this long. Zero keeps them forever.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 10, BurstSize: 20, IdleTTL: 10 * time.Minute}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors keeps one limiter per client key.
type visitors struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	byKey     map[string]*visitor
	now       func() time.Time
	lastSweep time.Time
}

func newVisitors(cfg RateLimitConfig) *visitors {
	return &visitors{cfg: cfg, byKey: make(map[string]*visitor), now: time.Now}
}

// take spends one token for key. When none is left it reports how long
// until the next one.
func (v *visitors) take(key string) (ok bool, wait time.Duration) {
	now := v.now()

	v.mu.Lock()
	v.sweepLocked(now)
	vis, found := v.byKey[key]
	if !found {
		vis = &visitor{limiter: rate.NewLimiter(rate.Limit(v.cfg.RequestsPerSecond), v.cfg.BurstSize)}
		v.byKey[key] = vis
	}
	vis.lastSeen = now
	v.mu.Unlock()

	if vis.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := vis.limiter.ReserveN(now, 1)
	wait = r.DelayFrom(now)
	r.CancelAt(now)
	if !r.OK() || wait == rate.InfDuration {
		wait = time.Second
	}
	return false, wait
}

// sweepLocked drops idle clients at most once per IdleTTL.
func (v *visitors) sweepLocked(now time.Time) {
	ttl := v.cfg.IdleTTL
	if ttl <= 0 || now.Sub(v.lastSweep) < ttl {
		return
	}
	v.lastSweep = now
	for key, vis := range v.byKey {
		if now.Sub(vis.lastSeen) >= ttl {
			delete(v.byKey, key)
		}
	}
}

func (v *visitors) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.byKey)
}

// RateLimit rejects clients that exceed cfg with 429 and a Retry-After
// header in whole seconds.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newVisitors(cfg))
}

func rateLimit(v *visitors) echo.MiddlewareFunc {
	keyFunc := v.cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c echo.Context) string { return c.RealIP() }
	}
	limit := strconv.FormatFloat(v.cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			ok, wait := v.take(keyFunc(c))
			if !ok {
				secs := max(int(math.Ceil(wait.Seconds())), 1)
				h.Set("Retry-After", strconv.Itoa(secs))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
