package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"dapurku/backend/internal/audit"
	"dapurku/backend/internal/cache"
	"dapurku/backend/internal/config"
	"dapurku/backend/internal/httpapi"
	"dapurku/backend/internal/lock"
	"dapurku/backend/internal/service"
	"dapurku/backend/internal/store"
	"dapurku/backend/internal/store/memory"
	pgstore "dapurku/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatalf("postgres migration failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	opts := service.Options{
		Audit:  audit.NewRepoSink(repo),
		Logger: logger,
		Policy: service.Policy{
			PaymentTolerance: cfg.PaymentTolerance,
			ThresholdPct:     cfg.PriceAlertThresholdPct,
			BaselineWindow:   cfg.PriceBaselineWindow,
			OutlierCacheTTL:  time.Duration(cfg.OutlierCacheTTLSeconds) * time.Second,
		},
	}

	if closeFn := wireRedis(ctx, cfg, repo, &opts, logger); closeFn != nil {
		closers = append(closers, closeFn)
	}

	svc := service.New(repo, opts)
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Address()).Info("procurement backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "main", "main", "shutdown", nil, err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithFields(logrus.Fields{"context": "close"}).Error(err.Error())
		}
	}

	logger.Info("server stopped")
}

// wireRedis swaps in the Redis outlier cache, document locks and audit
// stream when Redis answers. It returns the client's close func, or nil when
// the service keeps its in-process defaults.
func wireRedis(ctx context.Context, cfg config.Config, repo store.Repository, opts *service.Options, logger *logrus.Logger) func() error {
	if cfg.RedisAddr == "" {
		logger.Info("cache: noop")
		return nil
	}
	client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	outliers := cache.NewRedisOutlierCache(client)
	if err := outliers.Ping(ctx); err != nil {
		logger.WithError(err).Warn("redis unavailable, using noop cache and no document locks")
		_ = client.Close()
		return nil
	}
	opts.OutlierCache = outliers
	opts.Locker = lock.NewRedisLocker(client, time.Duration(cfg.DocumentLockTTLSeconds)*time.Second)
	opts.Audit = audit.Multi{audit.NewRepoSink(repo), audit.NewRedisStreamSink(client, cfg.AuditStream)}
	logger.WithField("stream", cfg.AuditStream).Info("cache: redis")
	return client.Close
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.PaymentTolerance <= 0 {
		return fmt.Errorf("PAYMENT_TOLERANCE must be positive")
	}
	return nil
}
