// Fintrack - personal finance tracker
// Entry point for the JSON API server
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

	"github.com/findosh/fintrack/internal/config"
	"github.com/findosh/fintrack/internal/handlers"
	"github.com/findosh/fintrack/internal/log"
	"github.com/findosh/fintrack/internal/middleware"
	"github.com/findosh/fintrack/internal/services/analytics"
	"github.com/findosh/fintrack/internal/services/auth"
	"github.com/findosh/fintrack/internal/services/notify"
	"github.com/findosh/fintrack/internal/services/oauth"
	"github.com/findosh/fintrack/internal/services/ratelimit"
	"github.com/findosh/fintrack/internal/services/token"
	"github.com/findosh/fintrack/internal/services/verification"
	"github.com/findosh/fintrack/internal/storage"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", log.FieldError, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := storage.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Initialize repositories
	userRepo := storage.NewUserRepository(db)
	categoryRepo := storage.NewCategoryRepository(db)
	transactionRepo := storage.NewTransactionRepository(db)
	budgetRepo := storage.NewBudgetRepository(db)

	limiter, codes, closeState, err := newStateBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeState()

	notifier, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	var provider oauth.Provider
	if cfg.OAuthEnabled() {
		provider = oauth.NewGoogle(cfg)
	} else {
		logger.Info("Google sign-in disabled, no client credentials configured")
	}

	// Initialize services
	tokenService := token.NewService(cfg)
	authService := auth.NewService(cfg, userRepo, tokenService, codes, notifier, provider, logger)
	analyticsService := analytics.NewService(transactionRepo, budgetRepo)

	h := handlers.New(cfg, logger, authService, analyticsService, categoryRepo, transactionRepo, budgetRepo, limiter)
	global := middleware.NewGlobalLimiter(cfg.GlobalRPS, cfg.GlobalBurst, cfg.TrustProxy)

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        h.Routes(global),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Fintrack server starting",
			"addr", srv.Addr,
			"environment", cfg.Environment,
			"state_backend", cfg.StateBackend,
			"notify_backend", cfg.NotifyBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if cfg.SweepInterval > 0 {
		g.Go(func() error {
			global.Run(gctx, cfg.SweepInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down, draining connections", "timeout", shutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// newStateBackend builds the rate limiter and code store. The returned
// func releases whatever the backend holds.
func newStateBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (ratelimit.Limiter, verification.Store, func(), error) {
	switch cfg.StateBackend {
	case config.StateBackendRedis:
		client, err := storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("Using redis for rate limits and verification codes")
		return ratelimit.NewRedisLimiter(client, logger),
			verification.NewRedisStore(client, cfg.CodeTTL),
			func() { client.Close() },
			nil
	default:
		limiter := ratelimit.NewMemoryLimiter(cfg.SweepInterval)
		codes := verification.NewMemoryStore(cfg.CodeTTL, cfg.SweepInterval)
		return limiter, codes, func() {
			limiter.Stop()
			codes.Stop()
		}, nil
	}
}

func newNotifier(cfg *config.Config, logger *log.Logger) (notify.Notifier, func(), error) {
	if cfg.NotifyBackend != config.NotifyBackendAMQP {
		return notify.NewLogNotifier(logger), func() {}, nil
	}

	n, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to broker: %w", err)
	}
	return n, func() {
		if err := n.Close(); err != nil {
			logger.Warn("Failed to close broker connection", log.FieldError, err)
		}
	}, nil
}
