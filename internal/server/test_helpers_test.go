package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/willsmith28/Cookbook/internal/auth"
	"github.com/willsmith28/Cookbook/internal/database"
	"github.com/willsmith28/Cookbook/internal/mealplans"
	"github.com/willsmith28/Cookbook/internal/recipes"
	"github.com/willsmith28/Cookbook/internal/users"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testSigningSecret = "test-signing-secret"

type testServer struct {
	handler  http.Handler
	db       *gorm.DB
	issuer   *auth.TokenIssuer
	users    *users.Service
	recipes  *recipes.Service
	realtime *RealtimeDispatcher
}

func newTestServer(t *testing.T, customize ...func(*Dependencies)) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.Open(database.Options{Driver: database.DriverSQLite, Path: dsn}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	recipeService, err := recipes.NewService(recipes.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct recipes service: %v", err)
	}
	mealPlanService, err := mealplans.NewService(mealplans.ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("failed to construct meal plan service: %v", err)
	}
	recipeService.AddGuard(mealPlanService)
	accountService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Cleanups:   []users.Cleanup{recipeService, mealPlanService},
		BcryptCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}

	realtime := NewRealtimeDispatcher()
	deps := Dependencies{
		Sessions:          validator,
		Tokens:            issuer,
		Recipes:           recipeService,
		MealPlans:         mealPlanService,
		Users:             accountService,
		Logger:            zap.NewNop(),
		Realtime:          realtime,
		HeartbeatInterval: time.Hour,
	}
	for _, apply := range customize {
		apply(&deps)
	}

	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &testServer{
		handler:  handler,
		db:       db,
		issuer:   issuer,
		users:    accountService,
		recipes:  recipeService,
		realtime: realtime,
	}
}

// login registers an account and returns a session token for it.
func (s *testServer) login(t *testing.T, username string, staff bool) string {
	t.Helper()
	token, _ := s.loginWithID(t, username, staff)
	return token
}

func (s *testServer) loginWithID(t *testing.T, username string, staff bool) (string, string) {
	t.Helper()
	user, err := s.users.Register(context.Background(), users.Credentials{Username: username, Password: "correct-horse"}, staff)
	if err != nil {
		t.Fatalf("failed to register %s: %v", username, err)
	}
	token, _, err := s.issuer.IssueSessionToken(context.Background(), user.Identity())
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token, user.ID
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, http.NoBody)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, status int) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func (s *testServer) createIngredient(t *testing.T, token, name string) int64 {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/ingredient", token, `{"name":"`+name+`"}`)
	expectStatus(t, recorder, http.StatusCreated)
	var ingredient recipes.IngredientView
	decodeBody(t, recorder, &ingredient)
	return ingredient.ID
}
