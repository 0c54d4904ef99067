// Command arquivo-server starts the arquivo-manager REST API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/and161185/arquivo-manager/internal/config"
	"github.com/and161185/arquivo-manager/internal/limiter"
	"github.com/and161185/arquivo-manager/internal/migrate"
	"github.com/and161185/arquivo-manager/internal/obs"
	"github.com/and161185/arquivo-manager/internal/repository/postgres"
	"github.com/and161185/arquivo-manager/internal/seclog"
	"github.com/and161185/arquivo-manager/internal/server/httpserver"
	"github.com/and161185/arquivo-manager/internal/service"
	"github.com/and161185/arquivo-manager/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("env", cfg.Env),
	)

	secret, generated, err := cfg.SigningKey()
	if err != nil {
		logger.Fatal("jwt secret", zap.Error(err))
	}
	if generated {
		logger.Warn("no jwt secret configured, using a random one; tokens will not survive a restart")
	}
	policies, err := cfg.Policies()
	if err != nil {
		logger.Fatal("rate limit policies", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	// Repositories
	db := &postgres.DB{Pool: pool}
	accountRepo := postgres.NewAccountRepo(db)
	resourceRepo := postgres.NewResourceRepo(db)
	eventRepo := postgres.NewEventRepo(db)

	metrics := obs.New(prometheus.NewRegistry())
	recorder := seclog.New(eventRepo, logger, seclog.WithMetrics(metrics))

	tokens, err := token.NewService(secret, token.WithTTL(cfg.TokenTTL))
	if err != nil {
		logger.Fatal("token service", zap.Error(err))
	}
	throttle := service.NewThrottler(limiter.New(limiter.NewPG(pool)), policies, cfg.CriticalKey, recorder, metrics)
	reval := service.NewRevalidator(accountRepo, recorder)

	// Services
	authSvc := service.NewAuthService(accountRepo, tokens, throttle, reval, recorder, logger)
	accountSvc := service.NewAccountService(accountRepo, recorder)
	resourceSvc := service.NewResourceService(resourceRepo, recorder, cfg.MaxUpload)

	if cfg.SeedFile != "" {
		if err := seed(ctx, cfg.SeedFile, accountSvc, logger); err != nil {
			logger.Fatal("seed accounts", zap.Error(err))
		}
	}

	guard := httpserver.NewGuard(tokens, reval, resourceSvc, throttle, recorder, logger)
	api := httpserver.New(httpserver.Services{
		Auth:      authSvc,
		Accounts:  accountSvc,
		Resources: resourceSvc,
		Events:    recorder,
	}, guard, logger,
		httpserver.WithMetrics(metrics),
		httpserver.WithReadiness(db.Ping),
		httpserver.WithMaxUpload(cfg.MaxUpload),
		httpserver.WithTrustProxy(cfg.TrustProxy),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

func seed(ctx context.Context, path string, svc *service.AccountServiceImpl, log *zap.Logger) error {
	accounts, err := config.LoadSeedFile(path)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		created, err := svc.Seed(ctx, a.Email, a.Password, a.FullName, a.Role)
		if err != nil {
			return err
		}
		if created {
			log.Info("seeded account", zap.String("email", a.Email), zap.String("role", string(a.Role)))
		}
	}
	return nil
}
