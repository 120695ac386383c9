package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/api_keys"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/auth"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/cache"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/config"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/constant"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/db"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/handlers"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/keystatus"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/maintenance"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/metrics"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/verifications"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync() // Ignore sync errors on close, as per zap documentation
	}()

	if path := cfg.ConfigFile(); path != "" {
		appLogger.Info("Loaded configuration file", "path", path)
	}

	gin.SetMode(gin.ReleaseMode) // Explicitly set release mode
	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.Default()
	if cfg.DebugMode {
		router.Use(cors.New(cors.Config{
			AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Authorization", "Content-Type", "Accept", constant.HeaderUsername, constant.HeaderGroup},
			ExposeHeaders: []string{"Content-Type"},
			AllowOriginFunc: func(origin string) bool {
				return true
			},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := openDatabase(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize database",
			"error", err,
		)
	}
	defer func() {
		if err := database.Close(); err != nil {
			appLogger.Error("Failed to close database",
				"error", err,
			)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics, err := metrics.New(registry)
	if err != nil {
		appLogger.Fatal("Failed to register metrics",
			"error", err,
		)
	}

	app, err := buildApp(ctx, cfg, database, appMetrics, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize services",
			"error", err,
		)
	}
	defer app.close()

	registerHandlers(router, cfg, app, appMetrics, appLogger)

	runner := maintenance.NewRunner(appLogger.Named("maintenance"), cfg.PruneInterval, app.jobs(cfg)...)
	go runner.Start(ctx)

	srv, err := newServer(cfg, router)
	if err != nil {
		appLogger.Fatal("Failed to create server",
			"error", err,
		)
	}

	go func() {
		appLogger.Info("Server starting",
			"address", srv.Addr,
			"secure", cfg.Secure,
			"storage", cfg.StorageMode.String(),
			"cache", cfg.CacheDriver.String(),
			"debug_mode", cfg.DebugMode,
		)
		if err := listenAndServe(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server failed to start",
				"error", err,
			)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutdown signal received, shutting down server...")

	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			"error", err,
		)
	}

	appLogger.Info("Server exited gracefully")
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.DebugMode {
		return logger.Development(), nil
	}
	return logger.NewWithLevel(cfg.LogLevel)
}

// openDatabase opens the database backing both stores.
//
// Storage modes:
//   - in-memory (default): Ephemeral storage, data lost on restart
//   - disk: Persistent local storage using a file (single replica only)
//   - external: External database (PostgreSQL), supports multiple replicas
func openDatabase(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*db.DB, error) {
	switch cfg.StorageMode {
	case config.StorageModeInMemory, "":
		appLogger.Info("Using in-memory storage (data will be lost on restart). " +
			"For persistent storage, use --storage=disk or --storage=external")
		return db.OpenSQLite(ctx, appLogger, db.SQLiteMemory)

	case config.StorageModeDisk:
		dataPath := strings.TrimSpace(cfg.DataPath)
		if dataPath == "" {
			dataPath = constant.DefaultDataPath
		}
		appLogger.Info("Using persistent disk storage", "path", dataPath)
		return db.OpenSQLite(ctx, appLogger, dataPath)

	case config.StorageModeExternal:
		appLogger.Info("Connecting to external database...")
		return db.OpenExternal(ctx, appLogger, cfg.DBConnectionURL)

	default:
		return nil, fmt.Errorf("unknown storage mode: %q (valid modes: in-memory, disk, external)", cfg.StorageMode)
	}
}

type app struct {
	database      *db.DB
	cache         cache.Client
	keyStore      *api_keys.SQLStore
	keyService    *api_keys.Service
	verifications verifications.Store
	verifier      *verifications.Verifier
	statusService *keystatus.Service
}

func buildApp(ctx context.Context, cfg *config.Config, database *db.DB, m *metrics.Metrics, appLogger *logger.Logger) (*app, error) {
	keyStore, err := api_keys.NewSQLStore(ctx, appLogger.Named("api_keys"), database)
	if err != nil {
		return nil, fmt.Errorf("api key store: %w", err)
	}

	verificationStore, err := verifications.NewSQLStore(ctx, appLogger.Named("verifications"), database)
	if err != nil {
		return nil, fmt.Errorf("verification store: %w", err)
	}

	cacheClient, err := cache.New(ctx, cache.Config{
		Driver:     cfg.CacheDriver.String(),
		Addr:       cfg.RedisAddr,
		DB:         cfg.RedisDB,
		Prefix:     cfg.Name,
		DefaultTTL: cfg.CacheTTL,
	})
	if err != nil {
		return nil, err
	}

	var store verifications.Store = verificationStore
	if cacheClient != nil {
		store = verifications.NewCachedStore(appLogger.Named("verifications"), verificationStore, cacheClient, cfg.CacheTTL, m)
	}

	verifier := verifications.NewVerifier(appLogger.Named("verifier"), keyStore, store,
		verifications.RateLimit{Limit: cfg.VerifyRateLimit, Burst: cfg.VerifyRateBurst}, m)

	keyService := api_keys.NewService(appLogger.Named("api_keys"), keyStore, api_keys.KeyDefaults{
		Prefix:     cfg.KeyPrefix,
		ByteLength: cfg.KeyByteLength,
	})

	return &app{
		database:      database,
		cache:         cacheClient,
		keyStore:      keyStore,
		keyService:    keyService,
		verifications: store,
		verifier:      verifier,
		statusService: keystatus.NewService(appLogger.Named("keystatus"), keyStore, store, cfg.BucketSize, m),
	}, nil
}

func (a *app) jobs(cfg *config.Config) []maintenance.Job {
	return []maintenance.Job{
		{Name: "prune-verifications", Run: func(ctx context.Context) error {
			_, err := a.verifications.Prune(ctx, time.Now().Add(-cfg.Retention))
			return err
		}},
		{Name: "refill-credits", Run: func(ctx context.Context) error {
			_, err := a.keyService.RefillCredits(ctx)
			return err
		}},
		{Name: "sweep-rate-limiters", Run: func(context.Context) error {
			a.verifier.Sweep()
			return nil
		}},
	}
}

func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

func registerHandlers(router *gin.Engine, cfg *config.Config, a *app, m *metrics.Metrics, appLogger *logger.Logger) {
	checks := map[string]handlers.PingFunc{"database": a.database.PingContext}
	if a.cache != nil {
		checks["cache"] = a.cache.Ping
	}
	healthHandler := handlers.NewHealthHandler(appLogger, checks)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	authenticator := auth.NewAuthenticator(appLogger.Named("auth"), cfg.JWTSigningKey)
	apiKeyHandler := api_keys.NewHandler(appLogger, a.keyService)
	verificationHandler := verifications.NewHandler(appLogger, a.keyStore, a.verifications, a.verifier, cfg.BucketSize)
	statusHandler := keystatus.NewHandler(appLogger, a.statusService)

	v1Routes := router.Group("/v1")

	// Gateway-facing endpoints
	adminRoutes := v1Routes.Group("", auth.AdminAuthMiddleware(cfg.AdminAPIKey))
	adminRoutes.POST("/verifications", verificationHandler.RecordVerification)
	adminRoutes.POST("/keys/verify", verificationHandler.VerifyKey)

	//nolint:contextcheck // Context is properly accessed via gin.Context in the returned handler
	apiKeyRoutes := v1Routes.Group("/api-keys", authenticator.ExtractUserInfo())
	apiKeyRoutes.POST("", apiKeyHandler.CreateAPIKey)
	apiKeyRoutes.GET("", apiKeyHandler.ListAPIKeys)
	apiKeyRoutes.GET("/statuses", statusHandler.ListStatuses)
	apiKeyRoutes.GET("/:id", apiKeyHandler.GetAPIKey)
	apiKeyRoutes.PATCH("/:id", apiKeyHandler.UpdateAPIKey)
	apiKeyRoutes.DELETE("/:id", apiKeyHandler.DeleteAPIKey)
	apiKeyRoutes.POST("/:id/enable", apiKeyHandler.EnableAPIKey)
	apiKeyRoutes.POST("/:id/disable", apiKeyHandler.DisableAPIKey)
	apiKeyRoutes.GET("/:id/status", statusHandler.GetStatus)
	apiKeyRoutes.GET("/:id/verifications", verificationHandler.GetBuckets)

	if cfg.AdminAPIKey == "" {
		appLogger.Warn("ADMIN_API_KEY is not set; verification intake endpoints are unauthenticated")
	}
}
