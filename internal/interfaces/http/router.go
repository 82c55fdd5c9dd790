package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/jwt"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Issuance  IssuanceService
	Policies  PolicyService
	JWTSecret string
	Logger    *logger.Logger

	// Health
	ServiceName string
	Checks      map[string]HealthCheck
	Breakers    BreakerStates

	// nil = sin /metrics
	Gatherer prometheus.Gatherer
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	// Salud y métricas (público)
	health := NewHealthHandler(deps.ServiceName, deps.Checks, deps.Breakers)
	app.Get("/health", health.Live)
	app.Get("/health/ready", health.Ready)
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	// Pólizas (Registry)
	policies := api.Group("/policies")
	policyHandler := NewPolicyHandler(deps.Policies, deps.Logger)
	policies.Get("/", policyHandler.Search)
	policies.Get("/:number", policyHandler.Check)

	// Certificados
	certs := api.Group("/certificates")
	certHandler := NewCertificateHandler(deps.Issuance, deps.Logger)
	certs.Post("/", certHandler.Create)
	certs.Post("/batch", certHandler.CreateBatch)
	certs.Get("/", certHandler.List)
	certs.Get("/:id", certHandler.Get)
	certs.Get("/:id/download", certHandler.Download)
	certs.Get("/:id/summary.pdf", certHandler.Summary)
	certs.Post("/:id/refresh", certHandler.Refresh)

	// Back-office
	backOffice := RequireRole(jwt.RoleOperator, jwt.RoleAdmin)
	certs.Post("/:id/cancel", backOffice, certHandler.Cancel)
	certs.Post("/:id/suspend", backOffice, certHandler.Suspend)
	certs.Post("/:id/resume", backOffice, certHandler.Resume)
	certs.Post("/:id/retry", backOffice, certHandler.Retry)
}
