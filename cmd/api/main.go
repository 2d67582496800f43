package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/tollgate/internal/auth"
	"github.com/BradenHooton/tollgate/internal/background"
	"github.com/BradenHooton/tollgate/internal/config"
	"github.com/BradenHooton/tollgate/internal/database"
	"github.com/BradenHooton/tollgate/internal/handlers"
	"github.com/BradenHooton/tollgate/internal/metrics"
	"github.com/BradenHooton/tollgate/internal/middleware"
	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/BradenHooton/tollgate/internal/ratelimit"
	"github.com/BradenHooton/tollgate/internal/repositories"
	"github.com/BradenHooton/tollgate/internal/routes"
	"github.com/BradenHooton/tollgate/internal/services"
	"github.com/BradenHooton/tollgate/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("migrations applied")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var sink stats.Sink
	if cfg.Stats.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("stats redis unreachable, decisions will be dropped until it recovers", slog.Any("error", err))
		}
		cancel()
		sink = stats.NewRedisSink(rdb, stats.WithPrefix(cfg.Stats.Prefix))
	}

	// Repositories
	auditRepo := repositories.NewAuditLogRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	flagRepo := repositories.NewFeatureFlagRepository(db)

	// Services
	auditService := services.NewAuditService(auditRepo, logger, cfg.Audit.BufferSize)
	defer auditService.Close()

	loginGuard := services.NewLoginGuard(loginAttemptRepo, auditService, services.LoginGuardConfig{
		Policy:   cfg.Lockout.Policy,
		FailOpen: cfg.Lockout.FailOpen,
	}, logger)
	apiKeyService := services.NewAPIKeyService(apiKeyRepo, auth.NewAPIKeyManager(), auditService, logger)
	killSwitch := services.NewKillSwitch(flagRepo, auditService, services.KillSwitchConfig{
		FlagKey: cfg.Gate.KillSwitchFlagKey,
		FlagTTL: cfg.Gate.KillSwitchFlagTTL,
	}, logger)

	// Rate limiting
	limiter, err := ratelimit.NewLimiter(cfg.RateLimit.Policies, ratelimit.WithShards(cfg.RateLimit.Shards))
	if err != nil {
		return fmt.Errorf("failed to build rate limiter: %w", err)
	}
	buckets, err := ratelimit.NewPathBuckets(cfg.RateLimit.PathBucketCapacity, cfg.RateLimit.PathBucketRefillPerSec)
	if err != nil {
		return fmt.Errorf("failed to build path buckets: %w", err)
	}
	classifier, err := ratelimit.NewClassifier(cfg.RateLimit.Routes)
	if err != nil {
		return fmt.Errorf("failed to build endpoint classifier: %w", err)
	}

	resolver := auth.NewIdentityResolver(cfg.Server.TrustedProxies)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	gate := middleware.Gate(middleware.GateConfig{
		Env: cfg.Server.Env,
		Stages: []middleware.Stage{
			&middleware.KillSwitchStage{
				Switch:         killSwitch,
				ExemptPrefixes: cfg.Gate.KillSwitchExemptPrefixes,
				Resolver:       resolver,
			},
			&middleware.PathBucketStage{Buckets: buckets},
			&middleware.APIKeyStage{
				Keys:              apiKeyService,
				ProtectedPrefixes: cfg.Gate.APIKeyProtectedPrefixes,
				Resolver:          resolver,
				Timing:            auth.NewTimingDelay(auth.TimingConfig{BaseDelay: cfg.Auth.APIKeyFailureDelay}),
			},
			&middleware.PolicyTierStage{Limiter: limiter, Classifier: classifier},
		},
		Resolver: resolver,
		Audit:    auditService,
		Metrics:  m,
		Stats:    sink,
		Tracer:   otel.Tracer("tollgate/gate"),
		Logger:   logger,
	})

	router := routes.NewRouter(routes.Dependencies{
		Logger:       logger,
		TokenManager: tokenManager,
		Resolver:     resolver,
		Gate:         gate,
		Denials:      auditService,
		Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Health:       handlers.NewHealthHandler(db, logger),
		APIKeys:      handlers.NewAPIKeyHandler(apiKeyService, resolver, logger),
		KillSwitch:   handlers.NewKillSwitchHandler(killSwitch, resolver, logger),
		Audit:        handlers.NewAuditHandler(auditService, logger),
		LoginGuard:   handlers.NewLoginGuardHandler(loginGuard, logger),
	})

	cleanup := background.NewCleanupManager(
		map[string]background.Sweeper{"policy": limiter, "path": buckets},
		loginAttemptRepo,
		m,
		logger,
		background.CleanupConfig{
			Interval:         cfg.RateLimit.CleanupInterval,
			IdleRetention:    cfg.RateLimit.IdleRetention,
			AttemptRetention: cfg.Lockout.AttemptRetention,
		},
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return cleanup.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// issueToken mints an access token for an operator. There is no user store,
// so admin tokens are issued out of band with the shared JWT secret.
func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("sub", "", "principal id placed in the token")
	roleName := fs.String("role", string(models.RoleAdmin), "role claim (admin, service or user)")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("-sub is required")
	}
	role, err := models.ParseRole(*roleName)
	if err != nil {
		return err
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return errors.New("JWT_SECRET is required")
	}

	token, err := auth.NewTokenManager(secret, *ttl).GenerateAccessToken(*subject, role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
