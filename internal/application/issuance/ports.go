// Package issuance orquesta la emisión de certificados: idempotencia, consulta al Registry,
// validación, traducción, envío al Issuer y persistencia de cada transición.
package issuance

import (
	"context"
	"time"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/repository"
)

// RegistrySource lectura de pólizas (cliente HTTP, con o sin caché).
type RegistrySource interface {
	Search(ctx context.Context, criteria entity.RegistrySearchCriteria) (*entity.RegistryPage, error)
	// GetPolicy devuelve (nil, nil) si la póliza no existe.
	GetPolicy(ctx context.Context, policyNumber string) (*entity.RegistryPolicy, error)
}

// RegistryInvalidator lo implementa una RegistrySource con caché: descarta la póliza para que
// la siguiente lectura vaya al Registry.
type RegistryInvalidator interface {
	Invalidate(policyNumber string)
}

// IssuerGateway operaciones de la autoridad emisora. Los rechazos llegan como
// *domain.IssuerRejectedError y los fallos de disponibilidad como *domain.DependencyError.
type IssuerGateway interface {
	SubmitEdition(ctx context.Context, envelope *entity.IssuerEnvelope) (*entity.IssuerResult, error)
	GetStatus(ctx context.Context, requestNumber string) (*entity.IssuerResult, error)
	UpdateStatus(ctx context.Context, requestNumber, action string) (*entity.IssuerResult, error)
	GetDownloadLinks(ctx context.Context, requestNumber string) (*entity.IssuerResult, error)
}

// Auditor destino de las transiciones. Publish no bloquea ni falla.
type Auditor interface {
	Publish(ctx context.Context, ev entity.AuditEvent)
}

// TxRunner ejecuta fn dentro de una transacción con el repositorio ligado a ella.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(repo repository.IssuanceRequestRepository) error) error
}

// SummaryRenderer genera el resumen imprimible de una solicitud.
type SummaryRenderer interface {
	RenderSummary(ctx context.Context, r *entity.IssuanceRequest) ([]byte, error)
}

// Clock fuente de tiempo inyectable.
type Clock func() time.Time

type actorKey struct{}

// WithActor asocia al contexto quién origina la operación (agente, operador o sweeper).
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom devuelve el actor del contexto o "system".
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "system"
}
