package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tannerhall/mantrap/internal/auth"
	"github.com/tannerhall/mantrap/internal/background"
	"github.com/tannerhall/mantrap/internal/config"
	"github.com/tannerhall/mantrap/internal/database"
	"github.com/tannerhall/mantrap/internal/handlers"
	middlewareCustom "github.com/tannerhall/mantrap/internal/middleware"
	"github.com/tannerhall/mantrap/internal/repositories"
	"github.com/tannerhall/mantrap/internal/routes"
	"github.com/tannerhall/mantrap/internal/services"
	"github.com/tannerhall/mantrap/internal/session"
	pkghttp "github.com/tannerhall/mantrap/pkg/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	profileRepo := repositories.NewProfileRepository(db)
	backupCodeRepo := repositories.NewBackupCodeRepository(db)
	emailCodeRepo := repositories.NewEmailCodeRepository(db)
	auditLogRepo := repositories.NewAuditLogRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(emailCodeRepo, auditLogRepo, logger, cfg.Server.CleanupInterval, cfg.TwoFA.AuditRetention)

	// AWS SES email sender
	emailSender, err := services.NewSESEmailSender(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.SiteName,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email sender", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	auditService := services.NewAuditService(auditLogRepo, logger)
	challengeService := services.NewEmailChallengeService(emailCodeRepo, emailSender, logger, cfg.Email.MagicLinkBase)
	twoFactorService := services.NewTwoFactorService(
		profileRepo,
		backupCodeRepo,
		emailCodeRepo,
		auditService,
		logger,
		services.TwoFactorConfig{
			Issuer:          cfg.TwoFA.Issuer,
			Digits:          cfg.TwoFA.Digits,
			Period:          cfg.TwoFA.Period,
			VerifyWindow:    cfg.TwoFA.VerifyWindow,
			SetupWindow:     cfg.TwoFA.SetupWindow,
			SecretLength:    cfg.TwoFA.SecretLength,
			BackupCodeCount: cfg.TwoFA.BackupCodeCount,
		},
	)

	// Session store and second-factor gate
	sessions := session.NewCookieStore(cfg.Session, cfg.Server.Env == "production")
	guard := auth.NewGuard(profileRepo)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, challengeService, sessions, logger, ipConfig, cfg.Server.DefaultLanding)
	auditHandler := handlers.NewAuditHandler(auditService, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, twoFactorHandler, auditHandler, guard, sessions, logger)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
