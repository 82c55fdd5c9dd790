// @title                       Certify Link API
// @version                     1.0
// @description                 Emisión de certificados de seguro de automóvil: Registry de pólizas, validación e Issuer.
// @BasePath                    /
// @securityDefinitions.apikey  Bearer
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	_ "github.com/VenomCocytus/a-certify-link-backend-sub002/docs"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/application/issuance"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/repository"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/audit"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/breaker"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/issuer"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/metrics"
	infrapdf "github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/pdf"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/postgres"
	infraredis "github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/redis"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/registry"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/tracing"
	httpRouter "github.com/VenomCocytus/a-certify-link-backend-sub002/internal/interfaces/http"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/config"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("idempotency_backend", cfg.Idempotency.Backend).
		Msg("iniciando aplicación")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("aplicación finalizada con error")
	}
	log.Info().Msg("aplicación detenida")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Observabilidad ─────────────────────────────────────────────────────
	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return err
	}
	defer shutdownWithTimeout(log, "tracing", tp.Shutdown)
	log.Info().Bool("enabled", tp.Enabled()).Str("exporter", cfg.Tracing.Exporter).Msg("tracing configurado")

	m := metrics.New(prometheus.DefaultRegisterer)
	breakers := breaker.NewSetFromConfig(cfg.Breaker, log.Named("breaker"), breaker.WithStateChange(m.BreakerStateChanged))

	// ── 2. Persistencia ───────────────────────────────────────────────────────
	if err := postgres.MigrateUp(cfg.DB.ConnectionString()); err != nil {
		return err
	}
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	checks := map[string]httpRouter.HealthCheck{"postgres": pool.Ping}

	var idempotencyStore repository.IdempotencyStore = postgres.NewIdempotencyRepository(pool)
	if cfg.Idempotency.Backend == "redis" {
		rdb, err := infraredis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		idempotencyStore = infraredis.NewIdempotencyStore(rdb.Client)
		checks["redis"] = rdb.Health
	}

	// ── 3. Dependencias externas ──────────────────────────────────────────────
	registrySource := registry.NewCachedClient(
		registry.NewClient(cfg.Registry, breakers, m), cfg.Registry.CacheTTL, log.Named("registry"),
	)
	issuerClient := issuer.NewClient(cfg.Issuer, breakers, m)

	publisher, err := audit.New(cfg.Kafka, log, m)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// ── 4. Casos de uso ───────────────────────────────────────────────────────
	repo := postgres.NewIssuanceRequestRepository(pool)
	guard := issuance.NewIdempotencyGuard(idempotencyStore, cfg.Idempotency, m, log)
	orch := issuance.NewOrchestrator(
		repo, postgres.NewTxRunner(pool), registrySource, issuerClient, guard, publisher,
		issuance.Settings{
			CompanyCode:      cfg.Issuer.CompanyCode,
			MaxRetries:       cfg.Issuance.MaxRetries,
			MarketMultiplier: cfg.Issuance.MarketMultiplier,
			Freshness:        cfg.Registry.Freshness,
		},
		m, log,
		issuance.WithSummaryRenderer(infrapdf.NewSummaryRenderer("FCFA")),
		issuance.WithTracer(tp.Tracer()),
	)
	sweeper := issuance.NewSweeper(orch, repo, idempotencyStore, cfg.Sweep, m, log)

	// ── 5. HTTP ───────────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(httpRouter.RequestLogger(log))

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Certify Link API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Issuance:    orch,
		Policies:    orch,
		JWTSecret:   cfg.JWT.Secret,
		Logger:      log,
		ServiceName: cfg.App.Name,
		Checks:      checks,
		Breakers:    breakers,
		Gatherer:    prometheus.DefaultGatherer,
	})

	// ── 6. Ejecución ──────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Listen(cfg.HTTP.Addr()) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("señal de apagado recibida, cerrando servidor...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})
	return g.Wait()
}

func shutdownWithTimeout(log *logger.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error().Err(err).Str("component", name).Msg("apagado")
	}
}
