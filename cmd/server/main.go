// Uploader Server
//
// Features:
// - Multipart file upload to S3 (or local disk / memory)
// - Content sniffing and JPEG thumbnails for images
// - SSE upload notifications
// - Optional JWT auth & per-client rate limiting
// - Prometheus metrics & structured logging (zap)
//
// With -issue-token <subject> the binary prints a signed upload token for
// JWT_SECRET and exits instead of serving.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/uploader/internal/api"
	"github.com/fruitsalade/uploader/internal/auth"
	"github.com/fruitsalade/uploader/internal/config"
	"github.com/fruitsalade/uploader/internal/events"
	"github.com/fruitsalade/uploader/internal/logging"
	"github.com/fruitsalade/uploader/internal/metrics"
	"github.com/fruitsalade/uploader/internal/quota"
	"github.com/fruitsalade/uploader/internal/storage"
	"github.com/fruitsalade/uploader/internal/storage/local"
	s3backend "github.com/fruitsalade/uploader/internal/storage/s3"
	"github.com/fruitsalade/uploader/internal/upload"
)

func main() {
	tokenSubject := flag.String("issue-token", "", "Print an upload token for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of a token printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if *tokenSubject != "" {
		if err := issueToken(os.Stdout, cfg.JWTSecret, *tokenSubject, *tokenTTL); err != nil {
			fmt.Fprintln(os.Stderr, "issue token:", err)
			os.Exit(1)
		}
		return
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Uploader starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("storage", cfg.StorageBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := storage.NewBackend(ctx, storage.Config{
		Type: cfg.StorageBackend,
		S3: s3backend.Config{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			Bucket:         cfg.Service.S3Bucket,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Region:         cfg.S3Region,
			UseSSL:         cfg.S3UseSSL,
			PathStyle:      cfg.S3PathStyle,
		},
		Local: local.Config{
			RootPath:   cfg.LocalStoragePath,
			PublicURL:  cfg.LocalPublicURL,
			CreateDirs: true,
		},
	})
	if err != nil {
		logging.Fatal("storage init failed", zap.Error(err))
	}
	defer backend.Close()

	broadcaster := events.NewBroadcaster()

	svc := upload.NewService(backend, cfg.Service)
	svc.SetTimeouts(cfg.StoreTimeout, cfg.ProcessTimeout)
	svc.SetBroadcaster(broadcaster)

	var authHandler *auth.Auth
	if cfg.JWTSecret != "" {
		authHandler = auth.New(cfg.JWTSecret)
		logging.Info("JWT auth enabled")
	} else {
		logging.Warn("JWT_SECRET not set, uploads are unauthenticated")
	}

	rateLimiter := quota.NewRateLimiter(cfg.UploadsPerMinute)

	srv := api.NewServer(svc, cfg.MaxFiles, authHandler, rateLimiter, broadcaster)
	if err := srv.Init(); err != nil {
		logging.Fatal("server init failed", zap.Error(err))
	}

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
		defer done()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Close()
	}()

	// Drop idle rate limiter buckets
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rateLimiter.Cleanup(24 * time.Hour)
			}
		}
	}()

	logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}

// issueToken writes a token for subject signed with secret to w.
func issueToken(w io.Writer, secret, subject string, ttl time.Duration) error {
	if secret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if ttl <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	token, err := auth.New(secret).IssueToken(subject, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
