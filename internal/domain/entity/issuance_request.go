package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida de una solicitud de emisión.
const (
	StatusPending          = "PENDING"           // Aceptada, Registry aún no consultado
	StatusRegistryFetched  = "REGISTRY_FETCHED"  // Póliza leída y validada
	StatusSubmitted        = "SUBMITTED"         // Enviada al Issuer
	StatusIssuerProcessing = "ISSUER_PROCESSING" // Issuer asignó número de solicitud, certificado en curso
	StatusCompleted        = "COMPLETED"         // Certificado emitido (terminal)
	StatusFailed           = "FAILED"            // Terminal salvo reintento
	StatusCancelled        = "CANCELLED"         // Anulada explícitamente (terminal)
	StatusSuspended        = "SUSPENDED"         // Reversible solo con Resume
)

// ActiveStatuses estados que cuentan para la unicidad (póliza, matrícula, compañía).
var ActiveStatuses = []string{StatusPending, StatusRegistryFetched, StatusSubmitted, StatusIssuerProcessing}

// DefaultMaxRetries si la solicitud no indica otro valor.
const DefaultMaxRetries = 3

// IssuanceRequest unidad de trabajo: un intento de emisión de certificado.
type IssuanceRequest struct {
	ID                 string
	ReferenceNumber    string // Único global, visible al cliente
	IssuerReference    string // Número de solicitud asignado por el Issuer
	IdempotencyKey     string // Vacío = sin clave
	Status             string
	PolicyNumber       string
	RegistrationNumber string
	ChassisNumber      string
	CompanyCode        string
	AgentCode          string
	OfficeCode         string
	RetryCount         int
	MaxRetries         int
	Retryable          bool // false para validación y rechazos de negocio
	ErrorCode          string
	ErrorMessage       string
	ErrorDetail        []string
	CertificateNumber  string
	CardNumber         string
	TotalPremium       decimal.Decimal
	DownloadURL        string
	DownloadExpiresAt  *time.Time
	DownloadCount      int
	Metadata           map[string]any
	RegistrySnapshot   *RegistryPolicy
	RegistryFetchedAt  *time.Time
	Envelope           *IssuerEnvelope
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ProcessedAt        *time.Time
}

// IsActive pendiente o en proceso.
func (r *IssuanceRequest) IsActive() bool {
	for _, s := range ActiveStatuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

// IsTerminal sin transición automática posible.
func (r *IssuanceRequest) IsTerminal() bool {
	switch r.Status {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusFailed:
		return !r.CanRetry()
	}
	return false
}

// CanRetry un FAILED transitorio que no agotó sus reintentos.
func (r *IssuanceRequest) CanRetry() bool {
	return r.Status == StatusFailed && r.Retryable && r.RetryCount < r.MaxRetries
}

// DuplicateKey tupla que admite una sola solicitud activa.
type DuplicateKey struct {
	PolicyNumber       string
	RegistrationNumber string
	CompanyCode        string
}

// Key devuelve la tupla de duplicados de la solicitud.
func (r *IssuanceRequest) Key() DuplicateKey {
	return DuplicateKey{
		PolicyNumber:       r.PolicyNumber,
		RegistrationNumber: r.RegistrationNumber,
		CompanyCode:        r.CompanyCode,
	}
}

// IssuanceFilter filtros del listado.
type IssuanceFilter struct {
	Status       string
	PolicyNumber string
	CompanyCode  string
	Limit        int
	Offset       int
}
