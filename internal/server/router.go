package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/willsmith28/Cookbook/internal/auth"
	"github.com/willsmith28/Cookbook/internal/logging"
	"github.com/willsmith28/Cookbook/internal/mealplans"
	"github.com/willsmith28/Cookbook/internal/metrics"
	"github.com/willsmith28/Cookbook/internal/ratelimit"
	"github.com/willsmith28/Cookbook/internal/recipes"
	"github.com/willsmith28/Cookbook/internal/tracing"
	"github.com/willsmith28/Cookbook/internal/users"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const sessionClaimsContextKey = "cookbook_session_claims"

const defaultHeartbeatInterval = 25 * time.Second

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingTokenIssuer      = errors.New("token issuer dependency required")
	errMissingRecipesService   = errors.New("recipes service dependency required")
	errMissingMealPlansService = errors.New("meal plans service dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
)

// SessionValidator authenticates requests carrying a session token.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

// TokenIssuer mints session tokens for authenticated accounts.
type TokenIssuer interface {
	IssueSessionToken(ctx context.Context, identity auth.Identity) (string, int64, error)
}

type Dependencies struct {
	Sessions       SessionValidator
	Tokens         TokenIssuer
	Recipes        *recipes.Service
	MealPlans      *mealplans.Service
	Users          *users.Service
	Logger         *zap.Logger
	AllowedOrigins []string
	// Optional collaborators. Nil disables the feature.
	Metrics           *metrics.Recorder
	Limiter           *ratelimit.Limiter
	TracerProvider    trace.TracerProvider
	Realtime          *RealtimeDispatcher
	HeartbeatInterval time.Duration
}

// NewHTTPHandler builds the gin engine serving the cookbook API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Recipes == nil {
		return nil, errMissingRecipesService
	}
	if deps.MealPlans == nil {
		return nil, errMissingMealPlansService
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	if err := registerValidators(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	var tracingOptions []otelgin.Option
	if deps.TracerProvider != nil {
		tracingOptions = append(tracingOptions, otelgin.WithTracerProvider(deps.TracerProvider))
	}
	router.Use(otelgin.Middleware(tracing.ServiceName, tracingOptions...))
	router.Use(corsMiddleware(deps.AllowedOrigins))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := &httpHandler{
		sessions:  deps.Sessions,
		tokens:    deps.Tokens,
		recipes:   deps.Recipes,
		mealPlans: deps.MealPlans,
		users:     deps.Users,
		logger:    logger,
		realtime:  realtime,
		heartbeat: heartbeat,
	}

	limit := func(c *gin.Context) { c.Next() }
	if deps.Limiter != nil {
		limit = deps.Limiter.Middleware(rateLimitIdentity)
	}

	accounts := router.Group("/auth")
	accounts.Use(limit)
	accounts.POST("/register", handler.handleRegister)
	accounts.POST("/token", handler.handleIssueToken)

	public := router.Group("/")
	public.Use(handler.identifyRequest, limit)
	public.GET("/ingredient", handler.handleListIngredients)
	public.GET("/ingredient/units", handler.handleListUnits)
	public.GET("/ingredient/:id", handler.handleGetIngredient)
	public.GET("/tag", handler.handleListTags)
	public.GET("/tag/kind", handler.handleListTagKinds)
	public.GET("/tag/:id", handler.handleGetTag)
	public.GET("/recipe", handler.handleListRecipes)
	public.GET("/recipe/:id", handler.handleGetRecipe)
	public.GET("/recipe/:id/ingredients", handler.handleListRecipeIngredients)
	public.GET("/recipe/:id/ingredients/:ingredient_id", handler.handleGetRecipeIngredient)
	public.GET("/recipe/:id/steps", handler.handleListSteps)
	public.GET("/recipe/:id/steps/:order", handler.handleGetStep)
	public.GET("/recipe/:id/tags", handler.handleListRecipeTags)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest, limit)
	protected.POST("/ingredient", handler.handleCreateIngredient)
	protected.DELETE("/ingredient/:id", handler.handleDeleteIngredient)
	protected.POST("/tag", handler.handleCreateTag)
	protected.POST("/recipe", handler.handleCreateRecipe)
	protected.PUT("/recipe/:id", handler.handleUpdateRecipe)
	protected.DELETE("/recipe/:id", handler.handleDeleteRecipe)
	protected.POST("/recipe/:id/favorite", handler.handleFavoriteRecipe)
	protected.DELETE("/recipe/:id/favorite", handler.handleUnfavoriteRecipe)
	protected.POST("/recipe/:id/ingredients", handler.handleAddRecipeIngredient)
	protected.PUT("/recipe/:id/ingredients/:ingredient_id", handler.handleUpdateRecipeIngredient)
	protected.DELETE("/recipe/:id/ingredients/:ingredient_id", handler.handleRemoveRecipeIngredient)
	protected.POST("/recipe/:id/steps", handler.handleAppendStep)
	protected.PUT("/recipe/:id/steps/:order", handler.handleUpdateStep)
	protected.DELETE("/recipe/:id/steps/:order", handler.handleDeleteStep)
	protected.POST("/recipe/:id/tags", handler.handleAddRecipeTag)
	protected.DELETE("/recipe/:id/tags/:tag_id", handler.handleRemoveRecipeTag)
	protected.GET("/meal-plan", handler.handleListMealPlans)
	protected.POST("/meal-plan", handler.handleCreateMealPlan)
	protected.GET("/meal-plan/stream", handler.handleMealPlanStream)
	protected.GET("/meal-plan/:id", handler.handleGetMealPlan)
	protected.PATCH("/meal-plan/:id", handler.handleUpdateMealPlan)
	protected.DELETE("/meal-plan/:id", handler.handleDeleteMealPlan)

	return router, nil
}

type httpHandler struct {
	sessions  SessionValidator
	tokens    TokenIssuer
	recipes   *recipes.Service
	mealPlans *mealplans.Service
	users     *users.Service
	logger    *zap.Logger
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

// authorizeRequest rejects requests without a valid session.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionClaimsContextKey, claims)
	c.Next()
}

// identifyRequest attaches the session when one is presented. Requests without
// credentials continue anonymously; invalid credentials are still rejected.
func (h *httpHandler) identifyRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	switch {
	case err == nil:
		c.Set(sessionClaimsContextKey, claims)
	case errors.Is(err, auth.ErrMissingSessionToken):
	default:
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (h *httpHandler) logTokenFailure(err error) {
	switch {
	case errors.Is(err, auth.ErrMissingSessionToken):
	case errors.Is(err, auth.ErrExpiredSessionToken), errors.Is(err, jwt.ErrTokenExpired):
		h.logger.Info("token validation failed", zap.Error(err))
	default:
		h.logger.Warn("token validation failed", zap.Error(err))
	}
}

func sessionClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, ok := c.Get(sessionClaimsContextKey)
	if !ok {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}

func actorFromContext(c *gin.Context) recipes.Actor {
	claims, ok := sessionClaims(c)
	if !ok {
		return recipes.Actor{}
	}
	return recipes.Actor{UserID: claims.UserID, Privileged: claims.Privileged()}
}

func rateLimitIdentity(c *gin.Context) string {
	if claims, ok := sessionClaims(c); ok && claims.UserID != "" {
		return "user:" + claims.UserID
	}
	return "ip:" + strings.TrimSpace(c.ClientIP())
}
