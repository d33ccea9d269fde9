package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter throttles credential endpoints per client IP using a
// fixed one-minute window in Redis. Redis being down fails open so an
// infra outage never locks users out.
type RateLimiter struct {
	rdb       *redis.Client
	perMinute int
	logger    *zap.Logger
}

func NewRateLimiter(rdb *redis.Client, perMinute int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{rdb: rdb, perMinute: perMinute, logger: logger}
}

// Limit wraps a handler with the per-IP window check.
func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	if l == nil || l.rdb == nil || l.perMinute <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ratelimit:" + clientIP(r) + ":" + r.URL.Path

		ctx := r.Context()
		// Incr and the expiry run in one pipeline; a window key must
		// never exist without a TTL or the limit would stick forever.
		pipe := l.rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, time.Minute)
		if _, err := pipe.Exec(ctx); err != nil {
			l.logger.Warn("rate limit check failed, allowing request", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		count := incr.Val()

		remaining := int64(l.perMinute) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.perMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(l.perMinute) {
			ttl, err := l.rdb.TTL(ctx, key).Result()
			if err != nil || ttl < 0 {
				ttl = time.Minute
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": int(ttl.Seconds()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from the forwarding
	// headers before this runs.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
