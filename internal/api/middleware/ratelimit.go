package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitStore counts requests per key in fixed windows
type RateLimitStore interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalRateLimitStore keeps window counters in process memory
type LocalRateLimitStore struct {
	counts *cache.Cache
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewLocalRateLimitStore allows limit requests per key per window
func NewLocalRateLimitStore(limit int, window time.Duration) *LocalRateLimitStore {
	return &LocalRateLimitStore{
		counts: cache.New(window, 2*window),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow implements RateLimitStore
func (s *LocalRateLimitStore) Allow(_ context.Context, key string) (bool, error) {
	k := windowKey(key, s.now(), s.window)
	if err := s.counts.Add(k, 1, s.window); err == nil {
		return s.limit >= 1, nil
	}

	n, err := s.counts.IncrementInt(k, 1)
	if err != nil {
		// The counter expired between Add and IncrementInt.
		s.counts.Set(k, 1, s.window)
		return s.limit >= 1, nil
	}
	return n <= s.limit, nil
}

// RedisRateLimitStore shares window counters between instances
type RedisRateLimitStore struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisRateLimitStore allows limit requests per key per window
func NewRedisRateLimitStore(client redis.Cmdable, limit int, window time.Duration) *RedisRateLimitStore {
	return &RedisRateLimitStore{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow implements RateLimitStore
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string) (bool, error) {
	k := "certproof:ratelimit:" + windowKey(key, s.now(), s.window)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "redis rate limit")
	}
	return incr.Val() <= int64(s.limit), nil
}

func windowKey(key string, now time.Time, window time.Duration) string {
	return key + ":" + strconv.FormatInt(now.UnixNano()/int64(window), 10)
}

// RateLimitMiddleware limits requests per client IP. When the store fails
// the request is let through
func RateLimitMiddleware(store RateLimitStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := store.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("Rate limit store unavailable", zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
