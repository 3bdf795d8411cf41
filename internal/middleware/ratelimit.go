package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// Limiter 判断指定键的请求是否放行。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter 是基于 INCR + EXPIRE 的固定窗口限流器，多实例共享计数。
type RedisLimiter struct {
	rdb    redis.UniversalClient
	limit  int
	window time.Duration
}

// NewRedisLimiter 创建固定窗口限流器。
func NewRedisLimiter(rdb redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{rdb: rdb, limit: limit, window: window}
}

// Allow 递增当前窗口的计数，超过上限时拒绝。上限非正数时总是放行。
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	bucket := time.Now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("intake:ratelimit:%s:%s", key, strconv.FormatInt(bucket, 10))

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(l.limit), nil
}

// RateLimit 按客户端 IP 限流。limiter 为 nil 时不限流；限流器异常时放行并记录日志。
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warnf("[RateLimit] 限流器不可用，放行请求, ip: %s, error: %v", c.ClientIP(), err)
			c.Next()
			return
		}
		if !allowed {
			abort(c, http.StatusTooManyRequests, errs.RateLimited, "请求过于频繁，请稍后再试")
			return
		}
		c.Next()
	}
}
