package repository

import (
	"context"
	"time"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
)

// IssuanceRequestRepository define el puerto de persistencia del ciclo de vida de emisión.
// Los Get* devuelven (nil, nil) cuando no hay fila.
type IssuanceRequestRepository interface {
	// Create inserta la solicitud. Una segunda solicitud activa para la misma tupla
	// (póliza, matrícula, compañía) devuelve domain.ErrDuplicateActive.
	Create(ctx context.Context, r *entity.IssuanceRequest) error
	// Update escribe la fila si su versión no cambió; si cambió devuelve domain.ErrVersionConflict.
	// En éxito incrementa r.Version.
	Update(ctx context.Context, r *entity.IssuanceRequest) error
	GetByID(ctx context.Context, id string) (*entity.IssuanceRequest, error)
	// GetForUpdate igual que GetByID pero bloquea la fila hasta el fin de la transacción.
	GetForUpdate(ctx context.Context, id string) (*entity.IssuanceRequest, error)
	GetByReference(ctx context.Context, reference string) (*entity.IssuanceRequest, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.IssuanceRequest, error)
	// FindActive solicitud activa para la tupla de duplicados, si existe.
	FindActive(ctx context.Context, key entity.DuplicateKey) (*entity.IssuanceRequest, error)
	// ListRetryable FAILED reintentables, las de updated_at más antiguo primero.
	ListRetryable(ctx context.Context, limit int) ([]*entity.IssuanceRequest, error)
	// ListProcessingOlderThan ISSUER_PROCESSING sin cambios desde before.
	ListProcessingOlderThan(ctx context.Context, before time.Time, limit int) ([]*entity.IssuanceRequest, error)
	// List listado paginado; devuelve además el total sin paginar.
	List(ctx context.Context, filter entity.IssuanceFilter) ([]*entity.IssuanceRequest, int, error)
}
