// Package certificate contiene las reglas puras del ciclo de vida de una solicitud de emisión
// y la validación de pólizas del Registry. No hace I/O: la persistencia es un paso aparte.
package certificate

import (
	"errors"
	"fmt"
	"time"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/issuer"
)

// metadataSuspendedFrom guarda el estado previo a una suspensión para poder reanudar.
const metadataSuspendedFrom = "suspended_from"

// MarkRegistryFetched PENDING -> REGISTRY_FETCHED. En REGISTRY_FETCHED solo refresca el snapshot
// (reintento con datos vencidos).
func MarkRegistryFetched(r *entity.IssuanceRequest, policy *entity.RegistryPolicy, now time.Time) error {
	if err := allow(r, entity.StatusRegistryFetched, entity.StatusPending, entity.StatusRegistryFetched); err != nil {
		return err
	}
	r.Status = entity.StatusRegistryFetched
	r.RegistrySnapshot = policy
	r.RegistryFetchedAt = &now
	if policy != nil && r.ChassisNumber == "" {
		r.ChassisNumber = policy.Vehicle.ChassisNumber
	}
	if policy != nil && r.OfficeCode == "" {
		r.OfficeCode = policy.OfficeCode
	}
	r.UpdatedAt = now
	return nil
}

// MarkSubmitted REGISTRY_FETCHED -> SUBMITTED con el sobre traducido.
func MarkSubmitted(r *entity.IssuanceRequest, envelope *entity.IssuerEnvelope, now time.Time) error {
	if err := allow(r, entity.StatusSubmitted, entity.StatusRegistryFetched); err != nil {
		return err
	}
	r.Status = entity.StatusSubmitted
	r.Envelope = envelope
	if envelope != nil {
		r.CardNumber = envelope.CardNumber
	}
	r.UpdatedAt = now
	return nil
}

// MarkIssuerProcessing SUBMITTED -> ISSUER_PROCESSING con el número de solicitud del Issuer.
func MarkIssuerProcessing(r *entity.IssuanceRequest, issuerReference string, now time.Time) error {
	if err := allow(r, entity.StatusIssuerProcessing, entity.StatusSubmitted); err != nil {
		return err
	}
	r.Status = entity.StatusIssuerProcessing
	r.IssuerReference = issuerReference
	clearError(r)
	r.UpdatedAt = now
	return nil
}

// MarkCompleted SUBMITTED | ISSUER_PROCESSING -> COMPLETED.
func MarkCompleted(r *entity.IssuanceRequest, res *entity.IssuerResult, now time.Time) error {
	if err := allow(r, entity.StatusCompleted, entity.StatusSubmitted, entity.StatusIssuerProcessing); err != nil {
		return err
	}
	r.Status = entity.StatusCompleted
	if res != nil {
		if res.RequestNumber != "" {
			r.IssuerReference = res.RequestNumber
		}
		r.CertificateNumber = res.CertificateNumber
		applyLinks(r, res)
	}
	clearError(r)
	r.ProcessedAt = &now
	r.UpdatedAt = now
	return nil
}

// MarkFailed lleva una solicitud activa a FAILED.
// Solo los fallos de disponibilidad son reintentables y consumen un intento;
// validación y rechazos de negocio quedan FAILED definitivo sin tocar RetryCount.
func MarkFailed(r *entity.IssuanceRequest, cause error, now time.Time) error {
	if err := allow(r, entity.StatusFailed, entity.ActiveStatuses...); err != nil {
		return err
	}
	r.Status = entity.StatusFailed
	r.Retryable = domain.IsRetryable(cause)
	if r.Retryable && r.RetryCount < r.MaxRetries {
		r.RetryCount++
	}
	r.ErrorCode = domain.Kind(cause)
	r.ErrorMessage = cause.Error()
	r.ErrorDetail = detailOf(cause)
	if !r.CanRetry() {
		r.ProcessedAt = &now
	}
	r.UpdatedAt = now
	return nil
}

// BeginRetry reentra un FAILED reintentable en el paso de envío (o en PENDING si no hay snapshot).
func BeginRetry(r *entity.IssuanceRequest, now time.Time) error {
	if !r.CanRetry() {
		return fmt.Errorf("%w: %s no es reintentable (estado %s, intentos %d/%d)",
			domain.ErrInvalidTransition, r.ReferenceNumber, r.Status, r.RetryCount, r.MaxRetries)
	}
	if r.RegistrySnapshot != nil {
		r.Status = entity.StatusRegistryFetched
	} else {
		r.Status = entity.StatusPending
	}
	r.ProcessedAt = nil
	r.UpdatedAt = now
	return nil
}

// Retire FAILED reintentable -> FAILED definitivo. Se usa cuando el reintento ya no puede
// avanzar, por ejemplo porque otra solicitud activa ocupa la misma póliza, matrícula y compañía.
func Retire(r *entity.IssuanceRequest, cause error, now time.Time) error {
	if r.Status != entity.StatusFailed {
		return fmt.Errorf("%w: %s -> %s definitivo", domain.ErrInvalidTransition, r.Status, entity.StatusFailed)
	}
	r.Retryable = false
	r.ErrorCode = domain.Kind(cause)
	r.ErrorMessage = cause.Error()
	r.ErrorDetail = detailOf(cause)
	r.ProcessedAt = &now
	r.UpdatedAt = now
	return nil
}

// EligibleForRetry mismo predicado que la consulta del barrido.
func EligibleForRetry(r *entity.IssuanceRequest) bool {
	return r.CanRetry()
}

// IsStale indica si el snapshot del Registry superó la frescura máxima.
func IsStale(r *entity.IssuanceRequest, freshness time.Duration, now time.Time) bool {
	if r.RegistrySnapshot == nil || r.RegistryFetchedAt == nil {
		return true
	}
	if freshness <= 0 {
		return false
	}
	return now.Sub(*r.RegistryFetchedAt) > freshness
}

// Cancel permitido desde cualquier estado no terminal. Un certificado emitido (COMPLETED o
// suspendido desde COMPLETED) solo se anula si el Issuer informa que todavía no fue transferido.
func Cancel(r *entity.IssuanceRequest, issuerNotTransferred bool, now time.Time) error {
	if err := checkStop(r, "anular", issuerNotTransferred); err != nil {
		return err
	}
	r.Status = entity.StatusCancelled
	r.ProcessedAt = &now
	r.UpdatedAt = now
	return nil
}

// Suspend igual que Cancel pero reversible con Resume.
func Suspend(r *entity.IssuanceRequest, issuerNotTransferred bool, now time.Time) error {
	if r.Status == entity.StatusSuspended {
		return fmt.Errorf("%w: %s ya está suspendida", domain.ErrInvalidTransition, r.ReferenceNumber)
	}
	if err := checkStop(r, "suspender", issuerNotTransferred); err != nil {
		return err
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[metadataSuspendedFrom] = r.Status
	r.Status = entity.StatusSuspended
	r.UpdatedAt = now
	return nil
}

// Resume SUSPENDED -> COMPLETED si la suspensión se aplicó sobre un certificado emitido;
// si no, vuelve a PENDING para recorrer el pipeline desde el Registry.
func Resume(r *entity.IssuanceRequest, now time.Time) error {
	if r.Status != entity.StatusSuspended {
		return fmt.Errorf("%w: solo se reanuda una solicitud suspendida (estado %s)",
			domain.ErrInvalidTransition, r.Status)
	}
	from, _ := r.Metadata[metadataSuspendedFrom].(string)
	delete(r.Metadata, metadataSuspendedFrom)
	if from == entity.StatusCompleted {
		r.Status = entity.StatusCompleted
	} else {
		r.Status = entity.StatusPending
		r.RegistrySnapshot = nil
		r.RegistryFetchedAt = nil
		r.ProcessedAt = nil
		clearError(r)
	}
	r.UpdatedAt = now
	return nil
}

// RecordDownload renueva (si corresponde) el enlace y cuenta la descarga.
func RecordDownload(r *entity.IssuanceRequest, res *entity.IssuerResult, now time.Time) error {
	if r.Status != entity.StatusCompleted {
		return fmt.Errorf("%w: el certificado no está emitido (estado %s)", domain.ErrInvalidTransition, r.Status)
	}
	if res != nil {
		applyLinks(r, res)
	}
	r.DownloadCount++
	r.UpdatedAt = now
	return nil
}

// DownloadExpired el enlace guardado ya no sirve.
func DownloadExpired(r *entity.IssuanceRequest, now time.Time) bool {
	return r.DownloadURL == "" || (r.DownloadExpiresAt != nil && !now.Before(*r.DownloadExpiresAt))
}

// Supersede aplica el resultado de un envío sobre la versión más reciente de la fila.
// El resultado del Issuer prevalece sobre una anulación o suspensión concurrente,
// pero nunca sobre un COMPLETED.
func Supersede(latest, outcome *entity.IssuanceRequest) error {
	if latest.Status == entity.StatusCompleted {
		return fmt.Errorf("%w: %s ya está emitida", domain.ErrInvalidTransition, latest.ReferenceNumber)
	}
	version := latest.Version
	metadata := latest.Metadata
	*latest = *outcome
	latest.Version = version
	if latest.Metadata == nil {
		latest.Metadata = metadata
	}
	return nil
}

// Issued el certificado existe en el Issuer: COMPLETED o suspendido desde COMPLETED.
func Issued(r *entity.IssuanceRequest) bool {
	if r.Status == entity.StatusCompleted {
		return true
	}
	from, _ := r.Metadata[metadataSuspendedFrom].(string)
	return r.Status == entity.StatusSuspended && from == entity.StatusCompleted
}

func checkStop(r *entity.IssuanceRequest, verb string, issuerNotTransferred bool) error {
	switch {
	case Issued(r) && !issuerNotTransferred:
		return fmt.Errorf("%w: no se puede %s un certificado ya emitido y transferido", domain.ErrInvalidTransition, verb)
	case Issued(r):
		return nil
	case r.Status == entity.StatusCancelled:
		return fmt.Errorf("%w: la solicitud ya está anulada", domain.ErrInvalidTransition)
	case r.IsTerminal():
		return fmt.Errorf("%w: no se puede %s una solicitud en estado terminal %s", domain.ErrInvalidTransition, verb, r.Status)
	}
	return nil
}

func allow(r *entity.IssuanceRequest, to string, from ...string) error {
	for _, s := range from {
		if r.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, r.Status, to)
}

func applyLinks(r *entity.IssuanceRequest, res *entity.IssuerResult) {
	if link := res.Links[issuer.LinkPDF]; link != "" {
		r.DownloadURL = link
	}
	if res.LinksExpireAt != nil {
		exp := *res.LinksExpireAt
		r.DownloadExpiresAt = &exp
	}
}

func clearError(r *entity.IssuanceRequest) {
	r.ErrorCode = ""
	r.ErrorMessage = ""
	r.ErrorDetail = nil
}

func detailOf(cause error) []string {
	var verr *domain.ValidationError
	if errors.As(cause, &verr) {
		return append([]string(nil), verr.Errors...)
	}
	var rej *domain.IssuerRejectedError
	if errors.As(cause, &rej) {
		return []string{fmt.Sprintf("issuer_code=%d", rej.Code), rej.Message}
	}
	return []string{cause.Error()}
}
