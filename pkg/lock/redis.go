package lock

import (
	"context"
	"sync"
	"time"

	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	defaultTTL   = 2 * time.Minute
	pollInterval = 50 * time.Millisecond
	keyPrefix    = "intake:lock:"
)

// 只有持有者 token 匹配时才删除，避免误删他人续上的锁。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 只有持有者 token 匹配时才续期。
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker 使用 SET NX PX 实现跨实例的互斥锁。
// 持有期间每 ttl/3 续期一次；持有者崩溃后锁在 TTL 后自动释放。
type RedisLocker struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisLocker 创建 Redis 锁。
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

// Lock 轮询直到获得锁或 ctx 结束。
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errs.From(ctx.Err())
			}
			return nil, errs.Wrap(errs.Unavailable, "acquire lock "+key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errs.From(ctx.Err())
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// 使用独立的 context，请求已取消时仍需释放锁。
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
				log.Warnf("[RedisLocker] 释放锁失败, key: %s, error: %v", redisKey, err)
			}
		})
	}, nil
}

// keepAlive 定期续期，直到 stop 关闭或锁已不属于当前持有者。
func (l *RedisLocker) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 3
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := refreshScript.Run(ctx, l.rdb, []string{redisKey}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		switch {
		case err != nil:
			log.Warnf("[RedisLocker] 续期失败, key: %s, error: %v", redisKey, err)
		case n == 0:
			log.Warnf("[RedisLocker] 锁已丢失, key: %s", redisKey)
			return
		}
	}
}
