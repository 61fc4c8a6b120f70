package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOperationCountsOutcomes(t *testing.T) {
	recorder := NewRecorder()
	recorder.ObserveOperation("recipes.create", "ok", 3*time.Millisecond)
	recorder.ObserveOperation("recipes.create", "ok", 2*time.Millisecond)
	recorder.ObserveOperation("recipes.create", "validation", time.Millisecond)

	if got := testutil.ToFloat64(recorder.operations.WithLabelValues("recipes.create", "ok")); got != 2 {
		t.Fatalf("expected 2 ok operations, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.operations.WithLabelValues("recipes.create", "validation")); got != 1 {
		t.Fatalf("expected 1 validation operation, got %v", got)
	}
}

func TestMiddlewareLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := NewRecorder()

	engine := gin.New()
	engine.Use(recorder.Middleware())
	engine.GET("/recipe/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	engine.GET("/metrics", gin.WrapH(recorder.Handler()))

	for _, path := range []string{"/recipe/1", "/recipe/2", "/missing"} {
		engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	if got := testutil.ToFloat64(recorder.httpRequests.WithLabelValues("/recipe/:id", http.MethodGet, "204")); got != 2 {
		t.Fatalf("expected 2 requests for route template, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.httpRequests.WithLabelValues("unmatched", http.MethodGet, "404")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}

	response := httptest.NewRecorder()
	engine.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if response.Code != http.StatusOK {
		t.Fatalf("expected metrics endpoint to return 200, got %d", response.Code)
	}
	if !strings.Contains(response.Body.String(), "cookbook_http_requests_total") {
		t.Fatalf("expected exposition to include request counter")
	}
}
