package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/consoleguard/internal/auth"
	"github.com/BradenHooton/consoleguard/internal/background"
	"github.com/BradenHooton/consoleguard/internal/config"
	"github.com/BradenHooton/consoleguard/internal/database"
	"github.com/BradenHooton/consoleguard/internal/handlers"
	"github.com/BradenHooton/consoleguard/internal/metrics"
	"github.com/BradenHooton/consoleguard/internal/middleware"
	"github.com/BradenHooton/consoleguard/internal/repositories"
	"github.com/BradenHooton/consoleguard/internal/routes"
	"github.com/BradenHooton/consoleguard/internal/services"
	pkgauth "github.com/BradenHooton/consoleguard/pkg/auth"
	"github.com/BradenHooton/consoleguard/pkg/clock"
	pkghttp "github.com/BradenHooton/consoleguard/pkg/http"
	pkglogger "github.com/BradenHooton/consoleguard/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

const tokenIssuer = "consoleguard"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.Int("max_login_attempts", cfg.Auth.MaxLoginAttempts),
		slog.Duration("lockout_duration", cfg.Auth.LockoutDuration),
		slog.Duration("session_timeout", cfg.Auth.SessionTimeout),
		slog.Bool("audit_db", cfg.Database.Enabled),
		slog.Bool("alerts", cfg.Alerts.Enabled),
	)

	ctx := context.Background()
	clk := clock.Real{}
	hasher := pkgauth.NewHasher(cfg.Auth.BcryptCost)

	// Optional durable audit store and console user table
	var (
		db         *database.DB
		eventStore services.EventStore
		userRepo   *repositories.UserRepository
		userTx     repositories.TxRunner
	)
	if cfg.Database.Enabled {
		db, err = database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, db.Pool, logger); err != nil {
				logger.Error("failed to migrate database", slog.Any("error", err))
				os.Exit(1)
			}
		}

		eventStore = repositories.NewSecurityEventRepository(db.Pool)
		userRepo = repositories.NewUserRepository(db.Pool)
		userTx = db
	}

	staticUsers := repositories.NewStaticUserStore()
	if err := bootstrapAdmin(ctx, cfg.Auth, hasher, staticUsers, userTx, clk, logger); err != nil {
		logger.Error("failed to bootstrap admin user", slog.Any("error", err))
		os.Exit(1)
	}

	var users services.UserLookup = staticUsers
	if userRepo != nil {
		users = repositories.NewFallbackUserLookup(userRepo, staticUsers)
	}

	var notifier services.AlertNotifier
	if cfg.Alerts.Enabled {
		ses, err := services.NewSESAlertNotifier(ctx,
			cfg.Alerts.AWSRegion,
			cfg.Alerts.FromAddress,
			cfg.Alerts.Recipients,
			cfg.Alerts.ConsoleName,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize alert notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = ses
	}

	// Guard components
	auditService := services.NewAuditService(pkglogger.NewAuditLogger(logger, cfg.Server.Env), eventStore, notifier, logger)

	tracker := services.NewAttemptTracker(services.AttemptConfig{
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockoutDuration:  cfg.Auth.LockoutDuration,
	}, clk, auditService, logger)

	sessions := auth.NewSessionManager(cfg.Auth.SessionTimeout, clk, auditService, logger)

	creds, err := services.NewPasswordCredentialStore(users, hasher, clk, logger)
	if err != nil {
		logger.Error("failed to initialize credential store", slog.Any("error", err))
		os.Exit(1)
	}

	loginService := services.NewLoginService(tracker, sessions, creds, auditService, clk, logger)

	if err := metrics.RegisterGuardGauges(prometheus.DefaultRegisterer, metrics.GuardGauges{
		ActiveSessions:   sessions.ActiveCount,
		LockedIdentities: tracker.LockedCount,
	}); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	// HTTP surface
	ipConfig, _ := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	codec := auth.NewTokenCodec(cfg.Auth.SessionSecret, tokenIssuer)
	cookies := auth.DefaultCookieConfig()
	cookies.Domain = cfg.Auth.CookieDomain

	var healthDB handlers.HealthChecker
	if db != nil {
		healthDB = db
	}

	router := routes.NewRouter(routes.RouterOptions{
		Env:            cfg.Server.Env,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IPConfig:       ipConfig,
		Logger:         logger,
	}, routes.Dependencies{
		Auth: handlers.NewAuthHandler(handlers.AuthHandlerConfig{
			Service:  loginService,
			Codec:    codec,
			Cookies:  cookies,
			IPConfig: ipConfig,
			Delay:    auth.NewFailureDelay(cfg.Auth.FailureDelayBase, cfg.Auth.FailureDelayJitter),
			Clock:    clk,
			Logger:   logger,
		}),
		Security: handlers.NewSecurityHandler(loginService, auditService, logger),
		Health:   handlers.NewHealthHandler(healthDB, logger),
		Guard: auth.GuardConfig{
			Sessions: sessions,
			Codec:    codec,
			IPConfig: ipConfig,
			Cookies:  cookies,
			Logger:   logger,
		},
		LoginRate: middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Server.LoginRateLimit,
			IPConfig:          ipConfig,
		},
		Metrics: metrics.Handler(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var retention time.Duration
	if cfg.Database.Enabled {
		retention = cfg.Database.EventRetention
	}
	cleanupManager := background.NewCleanupManager(sessions, tracker, auditService, background.CleanupConfig{
		Interval:       cfg.Auth.CleanupInterval,
		AttemptIdleTTL: cfg.Auth.AttemptIdleTTL,
		Retention:      retention,
	}, clk, logger)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	auditService.Wait()

	logger.Info("server stopped gracefully")
}

// bootstrapAdmin registers ADMIN_USERNAME in memory and, with a database,
// creates it there if no such console user exists yet. An existing database
// row is left untouched so operators can rotate the password in place.
func bootstrapAdmin(
	ctx context.Context,
	cfg config.AuthConfig,
	hasher *pkgauth.Hasher,
	static *repositories.StaticUserStore,
	db repositories.TxRunner,
	clk clock.Clock,
	logger *slog.Logger,
) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		logger.Info("no ADMIN_USERNAME or ADMIN_PASSWORD set, skipping admin bootstrap")
		return nil
	}

	hash, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	static.Put(cfg.AdminUsername, hash, clk.Now())

	if db == nil {
		logger.Info("admin user registered in memory", slog.String("username", pkglogger.MaskIdentity(cfg.AdminUsername)))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	created, err := repositories.EnsureUser(ctx, db, cfg.AdminUsername, hash)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	if !created {
		logger.Info("admin user already exists")
		return nil
	}

	logger.Info("admin user created successfully")
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
