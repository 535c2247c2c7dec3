package platform

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter guards the account-wide request budget of the provider.
// Allow returns a RateLimited *PublishError once the budget is spent.
type Limiter interface {
	Allow(ctx context.Context) error
}

// LocalLimiter keeps the hourly budget in process memory.
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter allows perHour requests per hour with bursts up to the full budget.
func NewLocalLimiter(perHour int) *LocalLimiter {
	if perHour <= 0 {
		perHour = 200
	}
	return &LocalLimiter{limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(perHour)), perHour)}
}

func (l *LocalLimiter) Allow(ctx context.Context) error {
	if !l.limiter.Allow() {
		return &PublishError{Kind: RateLimited, Message: "local hourly request budget exhausted"}
	}
	return nil
}

// RedisLimiter shares the hourly budget across workers with a fixed window counter.
type RedisLimiter struct {
	client  goredis.UniversalClient
	key     string
	perHour int64
	now     func() time.Time
}

// NewRedisLimiter creates a limiter keyed by account.
func NewRedisLimiter(client goredis.UniversalClient, accountID string, perHour int) *RedisLimiter {
	if perHour <= 0 {
		perHour = 200
	}
	return &RedisLimiter{
		client:  client,
		key:     "contentplane:publish_budget:" + accountID,
		perHour: int64(perHour),
		now:     time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context) error {
	window := l.now().UTC().Truncate(time.Hour)
	key := fmt.Sprintf("%s:%d", l.key, window.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Hour+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		// Budget store unavailable: a transient condition for the caller.
		return &PublishError{Kind: ServerError, Message: "request budget unavailable", Err: err}
	}

	if incr.Val() > l.perHour {
		return &PublishError{Kind: RateLimited, Message: "hourly request budget exhausted"}
	}
	return nil
}
