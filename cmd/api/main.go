package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schoolresults/server/internal/auth"
	"github.com/schoolresults/server/internal/config"
	"github.com/schoolresults/server/internal/db"
	httphandler "github.com/schoolresults/server/internal/http"
	"github.com/schoolresults/server/internal/http/handlers"
	"github.com/schoolresults/server/internal/license"
	"github.com/schoolresults/server/internal/logger"
	"github.com/schoolresults/server/internal/metrics"
	"github.com/schoolresults/server/internal/middleware"
	"github.com/schoolresults/server/internal/repo"
	"go.uber.org/zap"
)

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.AppEnv, "license-api")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("failed to open database", zap.String("dsn", db.RedactDSN(cfg.DatabaseURL)), zap.Error(err))
	}
	defer database.Close()

	if err := db.Migrate(database.DB); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}

	signingKey, err := cfg.SigningKey()
	if err != nil {
		zlog.Fatal("invalid signing key", zap.Error(err))
	}
	if signingKey == nil {
		_, signingKey, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			zlog.Fatal("failed to generate signing key", zap.Error(err))
		}
		zlog.Warn("LICENSE_SIGNING_KEY not set, using an ephemeral key; cached client certificates will not survive a restart")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize repositories
	licenseRepo := repo.NewLicenseRepo(database)
	deviceRepo := repo.NewDeviceRepo(database)
	sessionRepo := repo.NewSessionRepo(database)
	adminRepo := repo.NewAdminRepo(database)

	// Initialize services
	authOpts := []auth.Option{auth.WithLogger(zlog), auth.WithMetrics(m)}
	signer := auth.NewLicenseTokenSigner(signingKey, cfg.LicenseTokenTTL)
	sessionVerifier := auth.NewSessionVerifier(sessionRepo, authOpts...)
	adminService := auth.NewAdminService(adminRepo, sessionRepo, cfg.AdminSessionTTL, authOpts...)
	sweeper := auth.NewSessionSweeper(sessionRepo, cfg.SessionSweepInterval, authOpts...)
	licenseService := license.NewService(licenseRepo, deviceRepo,
		license.WithLogger(zlog),
		license.WithMetrics(m),
		license.WithSigner(signer),
		license.WithTrialDays(cfg.TrialDays),
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	router := httphandler.NewRouter(httphandler.Deps{
		Licenses:       handlers.NewLicenseHandler(licenseService),
		Admin:          handlers.NewAdminHandler(adminService),
		Health:         handlers.NewHealthHandler(database),
		Sessions:       sessionVerifier,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         zlog,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	go sweeper.Run(ctx)
	go limiter.Cleanup(ctx, 10*time.Minute)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	zlog.Info("server exited")
}
