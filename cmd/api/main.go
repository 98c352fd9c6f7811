//	@title			Tower Drawing API
//	@version		1.0
//	@description	Catalog of tower categories and variants with versioned PDF drawings.
//	@BasePath		/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"

	"towerdocs/internal/cache"
	"towerdocs/internal/config"
	"towerdocs/internal/database"
	"towerdocs/internal/database/migration"
	handlers "towerdocs/internal/http/handler"
	"towerdocs/internal/http/middleware"
	"towerdocs/internal/logger"
	"towerdocs/internal/otel"
	"towerdocs/internal/repository"
	"towerdocs/internal/repository/postgres"
	"towerdocs/internal/repository/sqlite"
	"towerdocs/internal/service"
	"towerdocs/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer appLog.Sync()

	if err := run(cfg, appLog); err != nil {
		appLog.Error("server_exit", "error", err)
		appLog.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, appLog *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, cfg.Tracing, appLog)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			appLog.Warn("tracing_shutdown_failed", "error", err)
		}
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(cfg.Database, appLog); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	repos := newRepositories(cfg.Database.Driver, db)

	backend, err := storage.NewBackend(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	storageMetrics, err := storage.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register storage metrics: %w", err)
	}
	store := storage.NewBlobStore(backend, storage.Options{
		MaxBytes:     cfg.Storage.MaxUploadBytes,
		AllowedTypes: cfg.Storage.AllowedMIMETypes,
		Timeout:      cfg.Storage.Timeout,
		Metrics:      storageMetrics,
		Log:          appLog.With("component", "storage", "backend", backend.Kind()),
	})
	appLog.Info("storage_ready", "backend", backend.Kind())

	catalogCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		// Reads fall through to the database without a cache.
		appLog.Warn("cache_unavailable", "error", err)
		catalogCache = cache.Nop{}
	}
	defer catalogCache.Close()

	svcLog := appLog.With("component", "service")
	docSvc := service.NewDocumentService(store, repos.documents, repos.variants, catalogCache, svcLog)
	catalogSvc := service.NewCatalogService(
		repos.categories, repos.variants, repos.documents, store, catalogCache, svcLog,
		service.DeletePolicy(cfg.Catalog.CategoryDeletePolicy),
	)
	authSvc := service.NewAuthService(cfg.Admin, svcLog)

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		// Multipart framing rides on top of the file itself.
		BodyLimit: int(cfg.Storage.MaxUploadBytes) + 1<<20,
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	app.Use(recover.New())
	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(appLog.With("component", "http")))
	app.Use(promMiddleware.Handler())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Accept,Authorization,Content-Type,X-Request-ID",
		MaxAge:       300,
	}))

	routes := handlers.Services{
		Catalog:   catalogSvc,
		Documents: docSvc,
		Auth:      authSvc,
		Gatherer:  prometheus.DefaultGatherer,

		SwaggerHost: cfg.AppHost,
	}
	if local, ok := backend.(*storage.LocalBackend); ok {
		routes.UploadsDir = local.Root()
		routes.UploadsPrefix = local.PublicPrefix()
	}
	handlers.RegisterRoutes(app, db, routes)

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("server_start", "addr", ":"+cfg.Port, "env", cfg.AppEnv)
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	appLog.Info("server_shutdown", "timeout", shutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type repositories struct {
	categories repository.CategoryRepository
	variants   repository.VariantRepository
	documents  repository.DocumentRepository
}

func newRepositories(driver string, db *sql.DB) repositories {
	if driver == database.DriverSQLite {
		return repositories{
			categories: sqlite.NewCategoryStore(db),
			variants:   sqlite.NewVariantStore(db),
			documents:  sqlite.NewDocumentStore(db),
		}
	}
	return repositories{
		categories: postgres.NewCategoryPostgres(db),
		variants:   postgres.NewVariantPostgres(db),
		documents:  postgres.NewDocumentPostgres(db),
	}
}
