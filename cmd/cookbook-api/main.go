package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/willsmith28/Cookbook/internal/auth"
	"github.com/willsmith28/Cookbook/internal/config"
	"github.com/willsmith28/Cookbook/internal/database"
	"github.com/willsmith28/Cookbook/internal/logging"
	"github.com/willsmith28/Cookbook/internal/mealplans"
	"github.com/willsmith28/Cookbook/internal/metrics"
	"github.com/willsmith28/Cookbook/internal/ratelimit"
	"github.com/willsmith28/Cookbook/internal/recipes"
	"github.com/willsmith28/Cookbook/internal/server"
	"github.com/willsmith28/Cookbook/internal/tracing"
	"github.com/willsmith28/Cookbook/internal/users"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cookbook-api",
		Short: "Cookbook recipe API",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServer(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate()
			},
		},
		newCreateUserCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("database-dsn", "", "Postgres connection string")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("signing-secret", "", "Session signing secret (overrides env)")
	flags.Duration("token-ttl", defaults.GetDuration("auth.token_ttl"), "Session token lifetime")
	flags.String("redis-url", "", "Redis URL for rate limiting; empty disables limiting")
	flags.String("tracing-exporter", defaults.GetString("tracing.exporter"), "Trace exporter (none, stdout)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.token_ttl", "token-ttl")
	bindFlag(cmd, "redis.url", "redis-url")
	bindFlag(cmd, "tracing.exporter", "tracing-exporter")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// application holds the wired services shared by every command.
type application struct {
	config    config.AppConfig
	logger    *zap.Logger
	db        *gorm.DB
	metrics   *metrics.Recorder
	recipes   *recipes.Service
	mealPlans *mealplans.Service
	users     *users.Service
}

func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return nil, err
	}

	app := &application{config: appConfig, logger: logger, db: db}
	var hooks recipes.Hooks
	if appConfig.MetricsEnabled {
		app.metrics = metrics.NewRecorder()
		hooks = app.metrics
	}

	app.recipes, err = recipes.NewService(recipes.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger.Named("recipes"),
		Hooks:    hooks,
	})
	if err != nil {
		return nil, err
	}
	app.mealPlans, err = mealplans.NewService(mealplans.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		Logger:     logger.Named("mealplans"),
		RecentDays: appConfig.MealPlanRecentDays,
	})
	if err != nil {
		return nil, err
	}
	app.recipes.AddGuard(app.mealPlans)

	app.users, err = users.NewService(users.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		Logger:     logger.Named("users"),
		IDProvider: users.NewUUIDProvider(),
		Cleanups:   []users.Cleanup{app.mealPlans, app.recipes},
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (a *application) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func runServer(ctx context.Context) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.close()
	logger := app.logger
	appConfig := app.config

	tracerProvider, shutdownTracing, err := tracing.Setup(tracing.Config{Exporter: appConfig.TracingExporter, Version: version})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	signingSecret := []byte(appConfig.AuthSigningSecret)
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: signingSecret,
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
		TokenTTL:      appConfig.AuthTokenTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: signingSecret,
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
		CookieName:    appConfig.AuthCookieName,
	})
	if err != nil {
		return err
	}

	var limiter *ratelimit.Limiter
	if appConfig.RedisURL != "" && appConfig.RateLimitRequests > 0 {
		redisClient, err := ratelimit.NewRedisClient(ctx, appConfig.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		limiter, err = ratelimit.NewLimiter(ratelimit.NewRedisStore(redisClient), ratelimit.Config{
			Requests: appConfig.RateLimitRequests,
			Window:   appConfig.RateLimitWindow,
			Logger:   logger.Named("ratelimit"),
		})
		if err != nil {
			return err
		}
	} else {
		logger.Info("rate limiting disabled")
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       sessionValidator,
		Tokens:         tokenIssuer,
		Recipes:        app.recipes,
		MealPlans:      app.mealPlans,
		Users:          app.users,
		Logger:         logger,
		AllowedOrigins: appConfig.CORSAllowedOrigins,
		Metrics:        app.metrics,
		Limiter:        limiter,
		TracerProvider: tracerProvider,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server stopping")
		return httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func runMigrate() error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.close()
	app.logger.Info("schema is up to date", zap.String("driver", app.config.DatabaseDriver))
	return nil
}

func newCreateUserCommand() *cobra.Command {
	var (
		username string
		password string
		staff    bool
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a local account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("COOKBOOK_CREATE_USER_PASSWORD")
			}
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			user, err := app.users.Register(cmd.Context(), users.Credentials{Username: username, Password: password}, staff)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			app.logger.Info("user created", zap.String("user_id", user.ID), zap.String("username", user.Username), zap.Bool("staff", user.IsStaff))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Account username")
	cmd.Flags().StringVar(&password, "password", "", "Account password; falls back to COOKBOOK_CREATE_USER_PASSWORD")
	cmd.Flags().BoolVar(&staff, "staff", false, "Grant permission to edit any recipe")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
