package issuance

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/repository"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/metrics"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/config"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

// Work produce el resultado serializado que queda asociado a la clave.
// Un error significa que no hubo resultado persistido: la clave se libera.
type Work func(ctx context.Context) ([]byte, error)

// IdempotencyGuard asegura que una Idempotency-Key produzca como máximo un resultado.
type IdempotencyGuard struct {
	store   repository.IdempotencyStore
	ttl     map[string]time.Duration
	lease   time.Duration
	now     Clock
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewIdempotencyGuard TTL por ámbito y lease del marcador IN_FLIGHT según config.
func NewIdempotencyGuard(store repository.IdempotencyStore, cfg config.IdempotencyConfig, m *metrics.Metrics, log *logger.Logger) *IdempotencyGuard {
	if log == nil {
		log = logger.Nop()
	}
	g := &IdempotencyGuard{
		store: store,
		ttl: map[string]time.Duration{
			entity.IdempotencyScopeSingle: orDefault(cfg.TTLSingle, 24*time.Hour),
			entity.IdempotencyScopeBatch:  orDefault(cfg.TTLBatch, 48*time.Hour),
		},
		lease:   orDefault(cfg.InFlightLease, 2*time.Minute),
		now:     time.Now,
		metrics: m,
		log:     log.Named("idempotency"),
	}
	return g
}

// WithClock reemplaza la fuente de tiempo (tests).
func (g *IdempotencyGuard) WithClock(now Clock) *IdempotencyGuard {
	g.now = now
	return g
}

// Execute reserva la clave, ejecuta work una sola vez y guarda su resultado.
// replayed = true cuando el resultado viene de una ejecución anterior con la misma huella.
func (g *IdempotencyGuard) Execute(ctx context.Context, key, scope, fingerprint string, work Work) (outcome []byte, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, fmt.Errorf("%w: Idempotency-Key obligatoria", domain.ErrInvalidInput)
	}
	ttl, ok := g.ttl[scope]
	if !ok {
		return nil, false, fmt.Errorf("%w: ámbito de idempotencia desconocido %q", domain.ErrInvalidInput, scope)
	}

	now := g.now()
	existing, reserved, err := g.store.Reserve(ctx, &entity.IdempotencyRecord{
		Key:         key,
		Scope:       scope,
		Fingerprint: fingerprint,
		Status:      entity.IdempotencyInFlight,
		LockedUntil: now.Add(g.lease),
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: reservar clave: %w", err)
	}
	if !reserved {
		switch {
		case existing.Fingerprint != fingerprint:
			g.metrics.IncIdempotencyConflict("key_reuse")
			return nil, false, domain.ErrIdempotencyKeyReuse
		case existing.Status == entity.IdempotencyComplete:
			g.metrics.IncReplay()
			return existing.Outcome, true, nil
		default:
			g.metrics.IncIdempotencyConflict("in_flight")
			return nil, false, domain.ErrIdempotencyInFlight
		}
	}

	// El registro se cierra aunque el cliente haya cortado la conexión.
	bg := context.WithoutCancel(ctx)

	outcome, err = work(ctx)
	if err != nil {
		if relErr := g.store.Release(bg, key, fingerprint); relErr != nil {
			g.log.Warn().Err(relErr).Str("key", key).Msg("no se pudo liberar la clave")
		}
		return nil, false, err
	}
	if err := g.store.Complete(bg, key, fingerprint, outcome, g.now().Add(ttl)); err != nil {
		// El marcador vence con su lease; la solicitud ya persistida conserva la clave.
		g.log.Warn().Err(err).Str("key", key).Msg("no se pudo completar la clave")
	}
	return outcome, false, nil
}

// Fingerprint BLAKE2b-256 del JSON canónico del comando.
func Fingerprint(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("idempotency: huella: %w", err)
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
