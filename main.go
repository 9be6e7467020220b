package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"minesweeperAPI/handlers"
	"minesweeperAPI/internal/cache"
	"minesweeperAPI/internal/config"
	"minesweeperAPI/internal/notification"
	"minesweeperAPI/internal/repository"
	"minesweeperAPI/internal/store"
	"minesweeperAPI/internal/token"
	"minesweeperAPI/internal/user"
	"minesweeperAPI/middleware"
	"minesweeperAPI/services"
)

type app struct {
	cfg    *config.Config
	logger *zap.Logger
	repo   repository.Store

	authService        *services.AuthService
	twoFactorService   *services.TwoFactorService
	economyService     *services.EconomyService
	leaderboardService *services.LeaderboardService
	limiter            *middleware.RateLimiter
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal("Failed to create logger: ", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise", zap.Error(err))
	}
	defer cleanup()

	middleware.InitPrometheus(prometheus.DefaultRegisterer, services.Collectors()...)
	go a.limiter.Cleanup(ctx)

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(a),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("error starting server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server shutdown complete")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildApp connects the stores and wires the services. The returned cleanup
// releases every connection it opened.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	repo, closeRepo, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, closeRepo)

	var topCache cache.TopCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		client, err := cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, func() { client.Close() })
		topCache = cache.NewRedisCache(client, cfg.CacheTTL)
		logger.Info("leaderboard cache enabled", zap.String("redis_addr", cfg.RedisAddr))
	}

	var mailer notification.Mailer
	if cfg.SMTPConfigured() {
		mailer = notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, logger)
	} else {
		logger.Warn("SMTP is not configured, emails will only be logged")
		mailer = notification.NewLogMailer(logger)
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = randomSecret()
		logger.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}
	tokens, err := token.NewManager(secret)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	a := &app{cfg: cfg, logger: logger, repo: repo}
	a.twoFactorService = services.NewTwoFactorService(repo, "Minesweeper", logger)
	a.authService = services.NewAuthService(repo, mailer, tokens, a.twoFactorService, logger, cfg.NotifyTimeout)
	a.economyService = services.NewEconomyService(repo, store.DefaultCatalog(), logger)
	a.leaderboardService = services.NewLeaderboardService(repo, a.economyService, topCache, logger)
	trusted, err := cfg.RateLimit.Proxies()
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	a.limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, trusted...)

	if cfg.Admin.Username != "" {
		if err := a.authService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.Email); err != nil {
			cleanup()
			return nil, func() {}, err
		}
	}

	return a, cleanup, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		if !cfg.IsDevelopment() {
			return nil, nil, errors.New("DATABASE_URL environment variable is not set")
		}
		logger.Warn("DATABASE_URL not set, using the in-memory store")
		return repository.NewMemoryStore(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info("connected to PostgreSQL")
	return repository.NewPostgresStore(pool), func() {
		logger.Info("closing database connection pool")
		pool.Close()
	}, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func newRouter(a *app) http.Handler {
	authHandler := handlers.NewAuthHandler(a.authService, a.twoFactorService, a.logger)
	gameHandler := handlers.NewGameHandler(a.leaderboardService, a.economyService, a.logger)
	storeHandler := handlers.NewStoreHandler(a.economyService, a.logger)
	adminHandler := handlers.NewAdminHandler(a.authService, a.logger)

	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(a.logger))
	r.Use(a.limiter.Middleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(a.cfg.Metrics.User, a.cfg.Metrics.Password)(promhttp.Handler())).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := a.repo.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "minesweeper-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/verify_email", authHandler.VerifyEmail).Methods("POST")
	api.HandleFunc("/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/request_password_reset", authHandler.RequestPasswordReset).Methods("POST")
	api.HandleFunc("/reset_password", authHandler.ResetPassword).Methods("POST")
	api.HandleFunc("/get_records", gameHandler.GetRecords).Methods("GET")
	api.HandleFunc("/store", storeHandler.GetStore).Methods("GET")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE TOKEN)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Authenticate(a.authService, a.logger))

	protected.HandleFunc("/protected", authHandler.Protected).Methods("GET")
	protected.HandleFunc("/enable_2fa", authHandler.Enable2FA).Methods("GET")
	protected.HandleFunc("/disable_2fa", authHandler.Disable2FA).Methods("GET")
	protected.HandleFunc("/generate_2fa_secret", authHandler.Generate2FASecret).Methods("GET")
	protected.HandleFunc("/verify_2fa", authHandler.Verify2FA).Methods("POST")

	protected.HandleFunc("/new_record", gameHandler.NewRecord).Methods("POST")
	protected.HandleFunc("/get_personal_records", gameHandler.GetPersonalRecords).Methods("GET")
	protected.HandleFunc("/open_mine", gameHandler.OpenMine).Methods("GET")
	protected.HandleFunc("/get_coins", gameHandler.GetCoins).Methods("GET")
	protected.HandleFunc("/get_available_bg", storeHandler.GetAvailableBG).Methods("GET")
	protected.HandleFunc("/add_bg", storeHandler.PurchaseStoreItem).Methods("POST")

	admin := api.PathPrefix("").Subrouter()
	admin.Use(middleware.Authenticate(a.authService, a.logger))
	admin.Use(middleware.RequireRole(user.RoleAdmin))

	admin.HandleFunc("/admin", adminHandler.Admin).Methods("GET")
	admin.HandleFunc("/users", adminHandler.ListUsers).Methods("GET")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.LegacyTokenHeader}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
	)
	return corsHandler(r)
}
