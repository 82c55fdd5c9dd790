package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/application/issuance"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/repository"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/audit"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/breaker"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/issuer"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/postgres"
	infraredis "github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/redis"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/registry"
)

// deps lo mínimo para ejecutar el orquestador fuera del servidor HTTP (sin métricas).
type deps struct {
	pool      *pgxpool.Pool
	store     repository.IdempotencyStore
	repo      *postgres.IssuanceRequestRepo
	orch      *issuance.Orchestrator
	publisher audit.Publisher
	closers   []func()
}

func (r *deps) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func buildDeps(ctx context.Context) (*deps, error) {
	rt := &deps{}
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	rt.pool = pool
	rt.closers = append(rt.closers, pool.Close)

	rt.store = postgres.NewIdempotencyRepository(pool)
	if cfg.Idempotency.Backend == "redis" {
		rdb, err := infraredis.New(ctx, cfg.Redis)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.store = infraredis.NewIdempotencyStore(rdb.Client)
		rt.closers = append(rt.closers, func() { _ = rdb.Close() })
	}

	publisher, err := audit.New(cfg.Kafka, log, nil)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.publisher = publisher
	rt.closers = append(rt.closers, publisher.Close)

	breakers := breaker.NewSetFromConfig(cfg.Breaker, log.Named("breaker"))
	rt.repo = postgres.NewIssuanceRequestRepository(pool)
	rt.orch = issuance.NewOrchestrator(
		rt.repo, postgres.NewTxRunner(pool),
		registry.NewClient(cfg.Registry, breakers, nil),
		issuer.NewClient(cfg.Issuer, breakers, nil),
		issuance.NewIdempotencyGuard(rt.store, cfg.Idempotency, nil, log),
		publisher,
		issuance.Settings{
			CompanyCode:      cfg.Issuer.CompanyCode,
			MaxRetries:       cfg.Issuance.MaxRetries,
			MarketMultiplier: cfg.Issuance.MarketMultiplier,
			Freshness:        cfg.Registry.Freshness,
		},
		nil, log,
	)
	return rt, nil
}
