package repository

import (
	"context"
	"time"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
)

// IdempotencyStore puerto del almacén de claves de idempotencia (PostgreSQL o Redis).
type IdempotencyStore interface {
	// Reserve inserta un marcador IN_FLIGHT de forma atómica. Si ya existe un registro vivo
	// devuelve (existing, false, nil) sin modificarlo; un registro vencido o un marcador con el
	// lease caducado se reemplaza y cuenta como reservado.
	Reserve(ctx context.Context, rec *entity.IdempotencyRecord) (existing *entity.IdempotencyRecord, reserved bool, err error)
	// Complete guarda el resultado y marca el registro COMPLETE hasta expiresAt.
	Complete(ctx context.Context, key, fingerprint string, outcome []byte, expiresAt time.Time) error
	// Release borra un marcador IN_FLIGHT de la huella indicada.
	Release(ctx context.Context, key, fingerprint string) error
	Get(ctx context.Context, key string) (*entity.IdempotencyRecord, error)
	// PurgeExpired borra registros vencidos; los backends con TTL nativo devuelven 0.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
