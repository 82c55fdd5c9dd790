package issuance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/application/dto"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/repository"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/metrics"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/config"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

// SweeperActor actor de las transiciones que origina el barrido.
const SweeperActor = "sweeper"

// Resultados del barrido (etiqueta result de la métrica).
const (
	sweepRecovered = "recovered"
	sweepFailed    = "failed"
	sweepSkipped   = "skipped"
	sweepError     = "error"
)

// retrier lo que el barrido necesita del orquestador.
type retrier interface {
	Retry(ctx context.Context, id string) (*dto.IssuanceResponse, error)
	RefreshStatus(ctx context.Context, id string) (*dto.IssuanceResponse, error)
}

// SweepReport resumen de una pasada.
type SweepReport struct {
	Retried   int   // FAILED reintentadas
	Recovered int   // salieron de FAILED
	Refreshed int   // ISSUER_PROCESSING consultadas
	Completed int   // ISSUER_PROCESSING que quedaron COMPLETED
	Skipped   int   // tomadas por otro proceso entre la consulta y el reintento
	Errors    int   // errores de infraestructura
	Purged    int64 // claves de idempotencia vencidas borradas
}

// Sweeper reintenta periódicamente las solicitudes FAILED reintentables y consulta las que
// llevan demasiado tiempo en ISSUER_PROCESSING.
type Sweeper struct {
	orch        retrier
	repo        repository.IssuanceRequestRepository
	idempotency repository.IdempotencyStore
	cfg         config.SweepConfig
	metrics     *metrics.Metrics
	log         *logger.Logger
	now         Clock
}

// NewSweeper idempotency puede ser nil (sin purga).
func NewSweeper(
	orch retrier,
	repo repository.IssuanceRequestRepository,
	idempotency repository.IdempotencyStore,
	cfg config.SweepConfig,
	m *metrics.Metrics,
	log *logger.Logger,
) *Sweeper {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Sweeper{
		orch:        orch,
		repo:        repo,
		idempotency: idempotency,
		cfg:         cfg,
		metrics:     m,
		log:         log.Named("sweeper"),
		now:         time.Now,
	}
}

// Run ejecuta una pasada cada Interval hasta que ctx se cancele.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info().Msg("barrido de reintentos deshabilitado")
		return nil
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Int("batch_size", s.cfg.BatchSize).
		Int("concurrency", s.cfg.Concurrency).
		Msg("barrido de reintentos iniciado")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("barrido de reintentos detenido")
			return nil
		case <-ticker.C:
			report, err := s.RunOnce(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("pasada de barrido fallida")
				continue
			}
			if report.Retried+report.Refreshed > 0 || report.Purged > 0 {
				s.log.Info().
					Int("retried", report.Retried).
					Int("recovered", report.Recovered).
					Int("refreshed", report.Refreshed).
					Int("completed", report.Completed).
					Int("skipped", report.Skipped).
					Int("errors", report.Errors).
					Int64("purged", report.Purged).
					Msg("pasada de barrido")
			}
		}
	}
}

// RunOnce una pasada: reintentos, consulta de ISSUER_PROCESSING antiguas y purga de claves.
// El fallo de una solicitud no detiene al resto.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	ctx = WithActor(ctx, SweeperActor)
	var report SweepReport

	// ── 1. FAILED reintentables, la más antigua primero ──
	failed, err := s.repo.ListRetryable(ctx, s.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("sweeper: listar reintentables: %w", err)
	}
	var recovered, skipped, errs atomic.Int64
	s.forEach(ctx, failed, func(ctx context.Context, r *entity.IssuanceRequest) {
		resp, err := s.orch.Retry(ctx, r.ID)
		switch {
		case errors.Is(err, domain.ErrConflict):
			// Otro proceso la tomó (versión distinta), ya no es reintentable u otra
			// solicitud activa ocupa su tupla (queda FAILED definitivo y no vuelve a listarse).
			skipped.Add(1)
			s.metrics.IncSweepRetry(sweepSkipped)
		case err != nil:
			errs.Add(1)
			s.metrics.IncSweepRetry(sweepError)
			s.log.Warn().Err(err).Str("reference", r.ReferenceNumber).Msg("reintento con error")
		case resp.Status == entity.StatusFailed:
			s.metrics.IncSweepRetry(sweepFailed)
		default:
			recovered.Add(1)
			s.metrics.IncSweepRetry(sweepRecovered)
		}
	})
	report.Retried = len(failed)

	// ── 2. ISSUER_PROCESSING sin novedades desde hace ProcessingAge ──
	var refreshed []*entity.IssuanceRequest
	if s.cfg.ProcessingAge > 0 {
		refreshed, err = s.repo.ListProcessingOlderThan(ctx, s.now().Add(-s.cfg.ProcessingAge), s.cfg.BatchSize)
		if err != nil {
			return report, fmt.Errorf("sweeper: listar en proceso: %w", err)
		}
	}
	var completed atomic.Int64
	s.forEach(ctx, refreshed, func(ctx context.Context, r *entity.IssuanceRequest) {
		resp, err := s.orch.RefreshStatus(ctx, r.ID)
		switch {
		case errors.Is(err, domain.ErrConflict):
			skipped.Add(1)
		case err != nil:
			errs.Add(1)
			s.log.Warn().Err(err).Str("reference", r.ReferenceNumber).Msg("consulta de estado con error")
		case resp.Status == entity.StatusCompleted:
			completed.Add(1)
		}
	})
	report.Refreshed = len(refreshed)

	// ── 3. Purga de claves de idempotencia vencidas ──
	if s.idempotency != nil {
		purged, err := s.idempotency.PurgeExpired(ctx, s.now())
		if err != nil {
			errs.Add(1)
			s.log.Warn().Err(err).Msg("purga de claves de idempotencia fallida")
		}
		report.Purged = purged
	}

	report.Recovered = int(recovered.Load())
	report.Completed = int(completed.Load())
	report.Skipped = int(skipped.Load())
	report.Errors = int(errs.Load())
	return report, nil
}

// forEach procesa las solicitudes con como máximo Concurrency en paralelo.
func (s *Sweeper) forEach(ctx context.Context, items []*entity.IssuanceRequest, fn func(context.Context, *entity.IssuanceRequest)) {
	if len(items) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, r := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(ctx, r)
			return nil
		})
	}
	_ = g.Wait()
}
