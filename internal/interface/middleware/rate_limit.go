package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/account-lifecycle/pkg/response"
)

// ipFromCtx extracts the client IP from Gin context, falling back to "unknown"
func ipFromCtx(c *gin.Context) string {
	if ip := c.GetString("real_ip"); ip != "" {
		return ip
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

func normalizePath(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return c.Request.URL.Path
}

// KeyFunc builds a rate-limit key from the request
type KeyFunc func(c *gin.Context) string

// AllowFunc returns true to bypass the limiter.
type AllowFunc func(*gin.Context) bool

func KeyByIP() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:ip:" + ipFromCtx(c)
	}
}

func KeyByIPAndPath() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:path:" + normalizePath(c) + ":ip:" + ipFromCtx(c)
	}
}

// KeyBySubject limits per authenticated token subject, falling back to IP.
func KeyBySubject() KeyFunc {
	return func(c *gin.Context) string {
		sub := c.GetString(CtxSubjectKey)
		if sub == "" {
			return "rl:subject:anon:ip:" + ipFromCtx(c)
		}
		return "rl:subject:" + sub
	}
}

// INCR starting the window on the first hit. A key left without expiry is
// given one again. Returns {count, remaining window in ms}.
var incrExpireScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if current == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

type RateLimitOptions struct {
	Limit  int
	Window time.Duration
	Key    KeyFunc
	Allow  AllowFunc
	// Rejected counts 429 responses by route; optional.
	Rejected *prometheus.CounterVec
}

// NewRateLimitMetrics registers the rejection counter on reg.
func NewRateLimitMetrics(reg prometheus.Registerer) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	}, []string{"route"})
	if reg != nil {
		reg.MustRegister(c)
	}
	return c
}

// RateLimit is NewRateLimit without metrics.
func RateLimit(rdb redis.Cmdable, limit int, window time.Duration, keyFn KeyFunc, allow AllowFunc) gin.HandlerFunc {
	return NewRateLimit(rdb, RateLimitOptions{Limit: limit, Window: window, Key: keyFn, Allow: allow})
}

// NewRateLimit is a fixed-window limiter on Redis. It writes the
// X-RateLimit-* headers, skips OPTIONS, and fails open when Redis errors.
func NewRateLimit(rdb redis.Cmdable, o RateLimitOptions) gin.HandlerFunc {
	if rdb == nil || o.Limit <= 0 || o.Window <= 0 || o.Key == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if (o.Allow != nil && o.Allow(c)) || strings.EqualFold(c.Request.Method, http.MethodOptions) {
			c.Next()
			return
		}

		res, err := incrExpireScript.Run(c.Request.Context(), rdb, []string{o.Key(c)}, o.Window.Milliseconds()).Slice()
		if err != nil || len(res) != 2 {
			c.Next()
			return
		}
		count := toInt(res[0])
		resetSec := (toInt(res[1]) + 999) / 1000

		c.Header("X-RateLimit-Limit", strconv.Itoa(o.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(o.Limit-count, 0)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))

		if count > o.Limit {
			if resetSec > 0 {
				c.Header("Retry-After", strconv.Itoa(resetSec))
			}
			if o.Rejected != nil {
				o.Rejected.WithLabelValues(normalizePath(c)).Inc()
			}
			response.Abort(c, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		c.Next()
	}
}

func toInt(v interface{}) int {
	switch x := v.(type) {
	case int64:
		return int(x)
	case int:
		return x
	case string:
		i, _ := strconv.Atoi(x)
		return i
	}
	return 0
}
