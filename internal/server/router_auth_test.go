package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/willsmith28/Cookbook/internal/auth"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/meal-plan", http.NoBody)
	request.Header.Set("Authorization", "Bearer expired-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{err: jwt.ErrTokenExpired},
		logger:   zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entry.Level)
	}
	if entry.Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), jwt.ErrTokenExpired) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired token error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsUnexpectedTokenErrorAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/meal-plan", http.NoBody)
	request.Header.Set("Authorization", "Bearer invalid-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{err: errors.New("signature mismatch")},
		logger:   zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for unexpected error, got %s", entries[0].Level)
	}
}

func TestIdentifyRequestAllowsAnonymousCallers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/recipe", http.NoBody)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{err: auth.ErrMissingSessionToken},
		logger:   zap.New(core),
	}

	handler.identifyRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected anonymous request to continue")
	}
	if _, ok := sessionClaims(ctx); ok {
		t.Fatalf("expected no session claims for anonymous request")
	}
	if logs.Len() != 0 {
		t.Fatalf("expected no logs for anonymous request, got %d", logs.Len())
	}
}

func TestRegisterAndIssueToken(t *testing.T) {
	server := newTestServer(t)

	registered := server.do(t, http.MethodPost, "/auth/register", "", `{"username":"new.cook","password":"long-enough"}`)
	expectStatus(t, registered, http.StatusCreated)
	if strings.Contains(registered.Body.String(), "password") {
		t.Fatalf("expected credentials to be omitted, got %s", registered.Body.String())
	}
	expectStatus(t, server.do(t, http.MethodPost, "/auth/register", "", `{"username":"new.cook","password":"long-enough"}`), http.StatusConflict)
	expectStatus(t, server.do(t, http.MethodPost, "/auth/register", "", `{"username":"x"}`), http.StatusBadRequest)

	expectStatus(t, server.do(t, http.MethodPost, "/auth/token", "", `{"username":"new.cook","password":"wrong-password"}`), http.StatusUnauthorized)

	issued := server.do(t, http.MethodPost, "/auth/token", "", `{"username":"new.cook","password":"long-enough"}`)
	expectStatus(t, issued, http.StatusOK)
	var token tokenResponsePayload
	decodeBody(t, issued, &token)
	if token.AccessToken == "" || token.TokenType != "Bearer" || token.ExpiresIn <= 0 {
		t.Fatalf("unexpected token response: %+v", token)
	}
	if !strings.Contains(issued.Header().Get("Set-Cookie"), "cookbook_session=") {
		t.Fatalf("expected session cookie, got %q", issued.Header().Get("Set-Cookie"))
	}

	expectStatus(t, server.do(t, http.MethodGet, "/meal-plan", token.AccessToken, ""), http.StatusOK)
	expectStatus(t, server.do(t, http.MethodGet, "/meal-plan", "", ""), http.StatusUnauthorized)
	expectStatus(t, server.do(t, http.MethodGet, "/recipe", "garbage", ""), http.StatusUnauthorized)
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); !errors.Is(err, errMissingSessionValidator) {
		t.Fatalf("expected missing session validator error, got %v", err)
	}
}

type stubSessionValidator struct {
	claims auth.SessionClaims
	err    error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	return s.claims, s.err
}

func (s stubSessionValidator) CookieName() string {
	return "cookbook_session"
}
