package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "cookbook:ratelimit"

var errMissingStore = errors.New("ratelimit: counter store required")

// Store counts hits in a fixed window. Increment returns the count after the
// hit and must expire the key once the window has passed.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisStore keeps window counters in redis.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: connect to redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Config describes a limit of Requests per Window.
type Config struct {
	Requests  int
	Window    time.Duration
	KeyPrefix string
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Decision is the result of one limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces a fixed window request limit per caller.
type Limiter struct {
	store    Store
	requests int
	window   time.Duration
	prefix   string
	clock    func() time.Time
	logger   *zap.Logger
}

// NewLimiter constructs a Limiter. A zero request count disables limiting.
func NewLimiter(store Store, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, errMissingStore
	}
	if cfg.Requests < 0 {
		return nil, fmt.Errorf("ratelimit: requests must not be negative")
	}
	if cfg.Requests > 0 && cfg.Window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		store:    store,
		requests: cfg.Requests,
		window:   cfg.Window,
		prefix:   prefix,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Allow records one hit for identity and reports whether it fits the limit.
func (l *Limiter) Allow(ctx context.Context, identity string) (Decision, error) {
	if l.requests == 0 {
		return Decision{Allowed: true}, nil
	}
	windowStart := l.clock().UTC().Truncate(l.window)
	resetAt := windowStart.Add(l.window)
	key := fmt.Sprintf("%s:%s:%d", l.prefix, identity, windowStart.Unix())

	count, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return Decision{}, err
	}
	remaining := l.requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= int64(l.requests), Remaining: remaining, ResetAt: resetAt}, nil
}

// Middleware limits requests by the value identify returns. Store failures
// are logged and the request is let through.
func (l *Limiter) Middleware(identify func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.requests == 0 {
			c.Next()
			return
		}
		identity := identify(c)
		decision, err := l.Allow(c.Request.Context(), identity)
		if err != nil {
			l.logger.Warn("rate limit check failed", zap.String("identity", identity), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int(decision.ResetAt.Sub(l.clock()).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": fmt.Sprintf("Request limit of %d per %v exceeded", l.requests, l.window),
			})
			return
		}
		c.Next()
	}
}
