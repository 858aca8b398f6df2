package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"drivex/internal/ratelimit"
	"drivex/internal/scheduler"
	"drivex/internal/util"
	"drivex/pkg/auth"
	"drivex/pkg/storage"
	"drivex/pkg/store"
	"drivex/services/drive/internal/app"
	"drivex/services/drive/internal/config"
	"drivex/services/drive/internal/identity"
	"drivex/services/drive/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFile)

	if err := run(cfg, logger); err != nil {
		logger.Error("drive exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.FileConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// validateConfig already checked every duration.
	sessionTTL, _ := config.ParseDuration("sessionTTL", cfg.SessionTTL)
	leeway, _ := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	sweepGrace, _ := config.ParseDuration("sweepGrace", cfg.SweepGrace)
	retention, _ := config.ParseDuration("trashRetention", cfg.TrashRetention)

	metadata, err := store.NewGormStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer metadata.Close()

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	var (
		revoker       store.TokenRevoker = store.NewMemoryTokenRevoker()
		authLimiter   ratelimit.Limiter
		uploadLimiter ratelimit.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		revoker = store.NewRedisTokenRevoker(rdb, "drivex:revoked")
		if cfg.AuthRateLimitPerMinute > 0 {
			if authLimiter, err = ratelimit.NewRedisFixedWindowLimiter(rdb, "drivex:ratelimit:auth", cfg.AuthRateLimitPerMinute, time.Minute); err != nil {
				return err
			}
		}
		if cfg.UploadRateLimitPerMinute > 0 {
			if uploadLimiter, err = ratelimit.NewRedisFixedWindowLimiter(rdb, "drivex:ratelimit:upload", cfg.UploadRateLimitPerMinute, time.Minute); err != nil {
				return err
			}
		}
	} else {
		logger.Warn("redisAddr not set: session revocation is process-local and rate limiting is disabled")
	}

	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL, revoker, store.JWTOptions{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   leeway,
	})
	if err != nil {
		return err
	}
	sealer, err := auth.NewSealer(cfg.TokenSealKey)
	if err != nil {
		return err
	}
	if !sealer.Enabled() {
		logger.Warn("tokenSealKey not set: google access tokens are stored unsealed")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	appCore, err := app.New(app.Config{
		Store:          metadata,
		Blobs:          blobs,
		Sessions:       sessions,
		Identity:       identity.NewGoogleVerifier(cfg.GoogleUserInfoURL),
		Sealer:         sealer,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TrashRetention: retention,
		SweepGrace:     sweepGrace,
	})
	if err != nil {
		return err
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: trusted,
		AuthLimiter:    authLimiter,
		UploadLimiter:  uploadLimiter,
	})
	if err != nil {
		return err
	}

	sched := scheduler.New(logger)
	if err := sched.AddJob("sweep", cfg.SweepCron, func(ctx context.Context) error {
		_, err := appCore.Sweep(ctx)
		return err
	}); err != nil {
		return err
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads and ranged downloads of large videos stream for a while.
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("drive server listening", "addr", addr, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		sched.Stop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openBlobStore(ctx context.Context, cfg config.FileConfig) (storage.BlobStore, error) {
	if cfg.StorageBackend == config.StorageMinio {
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
			Prefix:    cfg.Minio.Prefix,
		})
	}
	return storage.NewLocalStore(cfg.UploadDir)
}
