package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"towerdocs/docs"
	"towerdocs/internal/http/middleware"
	"towerdocs/internal/service"
)

// Services bundles what the routes need.
type Services struct {
	Catalog   service.CatalogService
	Documents service.DocumentService
	Auth      service.AuthService

	// Gatherer backs /metrics when set.
	Gatherer prometheus.Gatherer

	// UploadsDir is served under UploadsPrefix when the local backend is used.
	UploadsDir    string
	UploadsPrefix string

	// SwaggerHost is written into the generated docs at registration.
	SwaggerHost string
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin; validation and rules live in the services.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc Services) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	if svc.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{})))
	}
	docs.SwaggerInfo.Host = svc.SwaggerHost
	app.Get("/swagger/*", swagger.HandlerDefault)

	if svc.UploadsDir != "" {
		app.Static(svc.UploadsPrefix, svc.UploadsDir, fiber.Static{ByteRange: true})
	}

	app.Get("/categories", ListCategories(svc.Catalog))
	app.Get("/categories/:id", GetCategory(svc.Catalog))
	app.Get("/variants", ListVariants(svc.Catalog))
	app.Get("/variants/:id", GetVariant(svc.Catalog))
	app.Get("/variants/:id/documents", ListVersionHistory(svc.Documents))
	app.Get("/search", Search(svc.Catalog))

	admin := app.Group("/admin")
	// Login is registered before the guard so it stays reachable without a token.
	admin.Post("/login", Login(svc.Auth))
	admin.Use(middleware.RequireAdmin(svc.Auth))

	admin.Get("/dashboard", Dashboard(svc.Catalog))

	admin.Post("/categories", CreateCategory(svc.Catalog))
	admin.Put("/categories/:id", UpdateCategory(svc.Catalog))
	admin.Delete("/categories/:id", DeleteCategory(svc.Catalog))

	admin.Post("/variants", CreateVariant(svc.Catalog))
	admin.Put("/variants/:id", UpdateVariant(svc.Catalog))
	admin.Delete("/variants/:id", DeleteVariant(svc.Catalog))
	admin.Post("/variants/:id/documents", UploadDocument(svc.Documents))

	admin.Get("/documents", ListDocuments(svc.Documents))
	admin.Get("/documents/:id", GetDocument(svc.Documents))
	admin.Post("/documents/:id/activate", ActivateDocument(svc.Documents))
	admin.Delete("/documents/:id", DeleteDocument(svc.Documents))
}
