package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/repository"
)

var _ repository.IdempotencyStore = (*IdempotencyRepo)(nil)

// IdempotencyRepo almacén de claves de idempotencia sobre la tabla idempotency_keys.
type IdempotencyRepo struct {
	q Querier
}

// NewIdempotencyRepository construye el adaptador. Pasar pool o tx (Querier).
func NewIdempotencyRepository(q Querier) *IdempotencyRepo {
	return &IdempotencyRepo{q: q}
}

// Reserve inserta el marcador IN_FLIGHT. El ON CONFLICT solo reemplaza la fila existente si
// venció o si es un IN_FLIGHT con el lease caducado; si no, RETURNING no devuelve nada.
func (r *IdempotencyRepo) Reserve(ctx context.Context, rec *entity.IdempotencyRecord) (*entity.IdempotencyRecord, bool, error) {
	query := `
		INSERT INTO idempotency_keys (key, scope, fingerprint, status, outcome, locked_until, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'IN_FLIGHT', NULL, $4, $5, $6, $6)
		ON CONFLICT (key) DO UPDATE
		SET scope        = EXCLUDED.scope,
		    fingerprint  = EXCLUDED.fingerprint,
		    status       = EXCLUDED.status,
		    outcome      = NULL,
		    locked_until = EXCLUDED.locked_until,
		    expires_at   = EXCLUDED.expires_at,
		    created_at   = EXCLUDED.created_at,
		    updated_at   = EXCLUDED.updated_at
		WHERE idempotency_keys.expires_at <= $6
		   OR (idempotency_keys.status = 'IN_FLIGHT' AND idempotency_keys.locked_until <= $6)
		RETURNING key`

	// Dos intentos: la fila en conflicto puede desaparecer (purga) entre el INSERT y la lectura.
	for attempt := 0; attempt < 2; attempt++ {
		var key string
		err := r.q.QueryRow(ctx, query,
			rec.Key, rec.Scope, rec.Fingerprint, rec.LockedUntil, rec.ExpiresAt, rec.CreatedAt,
		).Scan(&key)
		if err == nil {
			rec.Status = entity.IdempotencyInFlight
			rec.UpdatedAt = rec.CreatedAt
			return nil, true, nil
		}
		if !isNoRows(err) {
			return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
		}
		existing, err := r.Get(ctx, rec.Key)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("reserve idempotency key: %s cambió durante la reserva", rec.Key)
}

// Complete guarda el resultado y extiende la vida del registro hasta expiresAt.
func (r *IdempotencyRepo) Complete(ctx context.Context, key, fingerprint string, outcome []byte, expiresAt time.Time) error {
	query := `
		UPDATE idempotency_keys
		SET status = 'COMPLETE', outcome = $3, expires_at = $4, updated_at = now()
		WHERE key = $1 AND fingerprint = $2`
	tag, err := r.q.Exec(ctx, query, key, fingerprint, outcome, expiresAt)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete idempotency key: %s no existe o cambió de huella", key)
	}
	return nil
}

// Release borra el marcador en vuelo para que el cliente pueda reintentar con la misma clave.
func (r *IdempotencyRepo) Release(ctx context.Context, key, fingerprint string) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE key = $1 AND fingerprint = $2 AND status = 'IN_FLIGHT'`,
		key, fingerprint)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Get devuelve el registro aunque haya vencido; la vigencia la decide el llamador con IsLive.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*entity.IdempotencyRecord, error) {
	query := `
		SELECT key, scope, fingerprint, status, outcome, locked_until, expires_at, created_at, updated_at
		FROM idempotency_keys WHERE key = $1`
	var rec entity.IdempotencyRecord
	err := r.q.QueryRow(ctx, query, key).Scan(
		&rec.Key, &rec.Scope, &rec.Fingerprint, &rec.Status, &rec.Outcome,
		&rec.LockedUntil, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	return &rec, nil
}

// PurgeExpired borra registros vencidos (lo invoca el barrido).
func (r *IdempotencyRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
