package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/lumagen/backend/internal/catalog"
	"github.com/lumagen/backend/internal/config"
	"github.com/lumagen/backend/internal/database"
	"github.com/lumagen/backend/internal/execution"
	"github.com/lumagen/backend/internal/handlers"
	"github.com/lumagen/backend/internal/ledger"
	"github.com/lumagen/backend/internal/middleware"
	"github.com/lumagen/backend/internal/repository"
	"github.com/lumagen/backend/internal/router"
	"github.com/lumagen/backend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, nil)
	if cfg.DevMode {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.ApplySchema(ctx, pool); err != nil {
		slog.Error("Failed to apply database schema", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Ledger with optional Redis balance cache
	redisClient := config.NewRedisClient(cfg)
	if redisClient != nil {
		defer redisClient.Close()
		slog.Info("Redis balance cache enabled", "addr", cfg.RedisAddr)
	}
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo, ledger.NewRedisCache(redisClient, cfg.BalanceCacheTTL))

	userRepo := repository.NewUserRepo(pool)
	requestRepo := repository.NewRequestRepo(pool)
	imageRepo := repository.NewImageRepo(pool)
	apiKeyRepo := repository.NewAPIKeyRepo(pool)

	catalogRepo := catalog.NewRepository(pool)
	catalogSvc := catalog.NewService(catalogRepo)

	validator, err := services.NewValidator(cfg.SchemaDir)
	if err != nil {
		slog.Error("Schema validator init failed", "schema_dir", cfg.SchemaDir, "error", err)
		os.Exit(1)
	}

	// Lifecycle: enqueue func is set after the River client is created
	// (breaks the init cycle).
	var insertMu sync.Mutex
	var insertFn services.EnqueueGenerateTxFunc
	enqueueGenerate := func(ctx context.Context, tx pgx.Tx, args execution.GenerateImageJobArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	lifecycle := services.NewLifecycle(pool, userRepo, requestRepo, imageRepo, catalogSvc, ledgerSvc, validator, enqueueGenerate, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewGenerateImageWorker(lifecycle, cfg.ProviderTimeout))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args execution.GenerateImageJobArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	apiRouter := router.New(router.Deps{
		Generation: &handlers.GenerationHandler{Lifecycle: lifecycle, Logger: logger},
		Account:    &handlers.AccountHandler{Ledger: ledgerSvc, Granter: lifecycle, Logger: logger},
		APIKeys:    &handlers.APIKeyHandler{Keys: apiKeyRepo, Logger: logger},
		Catalog:    catalog.NewHandler(catalogSvc, logger),
		Auth:       middleware.Auth([]byte(cfg.JWTSecret), userRepo, apiKeyRepo),
		Quota:      middleware.DailyQuota(requestRepo, cfg.DailyRequestCap),
		Admin:      middleware.AdminAuth(cfg.AdminToken),
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes generation jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
