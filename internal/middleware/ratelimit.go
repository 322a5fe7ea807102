package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/clubrun/run-attendance/internal/config"
)

// NewTokenBucket rate-limits the registration endpoint per client IP.
// With Redis available the bucket state is shared across processes via
// an atomic Lua script; without it (or when Redis errors) a per-process
// in-memory bucket takes over, so the limiter never fails open.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	local := newLocalBuckets(cfg)

	limiterScript := redis.NewScript(`
        local key = KEYS[1]
        local now_ms = tonumber(ARGV[1])
        local capacity = tonumber(ARGV[2])
        local refill_tokens = tonumber(ARGV[3])
        local interval_ms = tonumber(ARGV[4])
        local ttl_seconds = tonumber(ARGV[5])

        local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
        local tokens = tonumber(state[1])
        local last_refill = tonumber(state[2])

        if tokens == nil or last_refill == nil then
            tokens = capacity
            last_refill = now_ms
        end

        if interval_ms > 0 and refill_tokens > 0 then
            local elapsed = math.max(0, now_ms - last_refill)
            local intervals = math.floor(elapsed / interval_ms)
            if intervals > 0 then
                tokens = math.min(capacity, tokens + (intervals * refill_tokens))
                last_refill = last_refill + (intervals * interval_ms)
            end
        end

        local allowed = 0
        local retry_after_ms = 0
        if tokens > 0 then
            allowed = 1
            tokens = tokens - 1
        else
            local until_next = interval_ms - (now_ms - last_refill)
            if until_next < 0 then until_next = 0 end
            retry_after_ms = until_next
        end

        redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
        redis.call('EXPIRE', key, ttl_seconds)

        return { allowed, tokens, retry_after_ms }
    `)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key := cfg.Prefix + ":ip:" + ip

			allowed, remaining, retryMs := false, int64(0), int64(0)
			usedRedis := false

			if rdb != nil {
				args := []interface{}{
					time.Now().UnixMilli(),
					cfg.Capacity,
					cfg.RefillTokens,
					cfg.RefillInterval.Milliseconds(),
					int64(cfg.TTL / time.Second),
				}
				vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
				if err == nil {
					if arr, ok := vals.([]interface{}); ok && len(arr) == 3 {
						allowed = asInt64(arr[0]) == 1
						remaining = asInt64(arr[1])
						retryMs = asInt64(arr[2])
						usedRedis = true
					}
				} else if cfg.Debug {
					c.Logger().Warnf("ratelimit: redis error for key=%s: %v", key, err)
				}
			}
			if !usedRedis {
				allowed, remaining, retryMs = local.take(ip)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"success":     false,
					"error":       "rate_limited",
					"message":     "too many registration attempts, slow down",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// localBuckets is the single-process fallback limiter. State lives in a
// map keyed by IP; entries untouched for longer than the configured TTL
// are pruned lazily, in a sweep run on access at most once per TTL.
type localBuckets struct {
	mu      sync.Mutex
	cfg     config.RateLimitConfig
	state   map[string]*localBucket
	sweepAt time.Time
}

type localBucket struct {
	tokens     int
	lastRefill time.Time
	touched    time.Time
}

func newLocalBuckets(cfg config.RateLimitConfig) *localBuckets {
	return &localBuckets{cfg: cfg, state: make(map[string]*localBucket)}
}

func (l *localBuckets) take(ip string) (allowed bool, remaining, retryMs int64) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		for k, b := range l.state {
			if now.Sub(b.touched) > l.cfg.TTL {
				delete(l.state, k)
			}
		}
		l.sweepAt = now.Add(l.cfg.TTL)
	}

	b, ok := l.state[ip]
	if !ok {
		b = &localBucket{tokens: l.cfg.Capacity, lastRefill: now}
		l.state[ip] = b
	}
	if intervals := int(now.Sub(b.lastRefill) / l.cfg.RefillInterval); intervals > 0 {
		b.tokens += intervals * l.cfg.RefillTokens
		if b.tokens > l.cfg.Capacity {
			b.tokens = l.cfg.Capacity
		}
		b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * l.cfg.RefillInterval)
	}
	b.touched = now

	if b.tokens > 0 {
		b.tokens--
		return true, int64(b.tokens), 0
	}
	wait := l.cfg.RefillInterval - now.Sub(b.lastRefill)
	if wait < 0 {
		wait = 0
	}
	return false, 0, wait.Milliseconds()
}
