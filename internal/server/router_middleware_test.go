package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/willsmith28/Cookbook/internal/metrics"
	"github.com/willsmith28/Cookbook/internal/ratelimit"
)

type countingStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (s *countingStore) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[string]int64)
	}
	s.counts[key]++
	return s.counts[key], nil
}

func TestRateLimitAppliesPerCaller(t *testing.T) {
	limiter, err := ratelimit.NewLimiter(&countingStore{}, ratelimit.Config{Requests: 2, Window: time.Minute})
	if err != nil {
		t.Fatalf("failed to construct limiter: %v", err)
	}
	server := newTestServer(t, func(deps *Dependencies) { deps.Limiter = limiter })
	token := server.login(t, "cook-one", false)

	expectStatus(t, server.do(t, http.MethodGet, "/recipe", "", ""), http.StatusOK)
	expectStatus(t, server.do(t, http.MethodGet, "/recipe", "", ""), http.StatusOK)
	limited := server.do(t, http.MethodGet, "/recipe", "", "")
	expectStatus(t, limited, http.StatusTooManyRequests)
	if limited.Header().Get("X-RateLimit-Limit") != "2" {
		t.Fatalf("expected rate limit headers, got %v", limited.Header())
	}

	expectStatus(t, server.do(t, http.MethodGet, "/recipe", token, ""), http.StatusOK)
	expectStatus(t, server.do(t, http.MethodGet, "/healthz", "", ""), http.StatusOK)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	recorder := metrics.NewRecorder()
	server := newTestServer(t, func(deps *Dependencies) { deps.Metrics = recorder })
	token := server.login(t, "cook-one", false)

	expectStatus(t, server.do(t, http.MethodPost, "/recipe", token, `{"name":"Tea","description":"hot","servings":1,"cook_time":"5m"}`), http.StatusCreated)

	exposition := server.do(t, http.MethodGet, "/metrics", "", "")
	expectStatus(t, exposition, http.StatusOK)
	if !strings.Contains(exposition.Body.String(), `cookbook_http_requests_total{method="POST",route="/recipe",status="201"} 1`) {
		t.Fatalf("expected request counter for recipe create, got %s", exposition.Body.String())
	}
}
