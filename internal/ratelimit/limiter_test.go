package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	counts map[string]int64
	err    error
}

func (s *memoryStore) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.counts == nil {
		s.counts = make(map[string]int64)
	}
	s.counts[key]++
	return s.counts[key], nil
}

func TestLimiterAllowsUpToLimitPerWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)
	store := &memoryStore{}
	limiter, err := NewLimiter(store, Config{Requests: 2, Window: time.Minute, Clock: func() time.Time { return now }})
	require.NoError(t, err)

	ctx := context.Background()
	first, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC), first.ResetAt)

	second, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	third, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.Equal(t, 0, third.Remaining)

	other, err := limiter.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(time.Minute)
	nextWindow, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, nextWindow.Allowed)
}

func TestNewLimiterValidatesConfig(t *testing.T) {
	_, err := NewLimiter(nil, Config{Requests: 1, Window: time.Second})
	assert.ErrorIs(t, err, errMissingStore)

	_, err = NewLimiter(&memoryStore{}, Config{Requests: 1})
	assert.Error(t, err)

	_, err = NewLimiter(&memoryStore{}, Config{Requests: -1, Window: time.Second})
	assert.Error(t, err)
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2024, 5, 1, 12, 0, 50, 0, time.UTC)
	limiter, err := NewLimiter(&memoryStore{}, Config{Requests: 1, Window: time.Minute, Clock: func() time.Time { return now }})
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(limiter.Middleware(func(c *gin.Context) string { return c.ClientIP() }))
	engine.GET("/recipe", func(c *gin.Context) { c.Status(http.StatusOK) })

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/recipe", http.NoBody))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "1", recorder.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", recorder.Header().Get("X-RateLimit-Remaining"))

	recorder = httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/recipe", http.NoBody))
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, "10", recorder.Header().Get("Retry-After"))
	assert.Contains(t, recorder.Body.String(), "rate_limited")
}

func TestMiddlewareFailsOpenOnStoreErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, err := NewLimiter(&memoryStore{err: errors.New("redis down")}, Config{Requests: 1, Window: time.Minute})
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(limiter.Middleware(func(c *gin.Context) string { return "anyone" }))
	engine.GET("/recipe", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		recorder := httptest.NewRecorder()
		engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/recipe", http.NoBody))
		assert.Equal(t, http.StatusOK, recorder.Code)
	}
}

func TestDisabledLimiterSkipsStore(t *testing.T) {
	store := &memoryStore{}
	limiter, err := NewLimiter(store, Config{})
	require.NoError(t, err)

	decision, err := limiter.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, store.counts)
}
