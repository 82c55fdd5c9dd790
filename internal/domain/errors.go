package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Errores de dominio (sin dependencias externas).
// Las cinco familias del pipeline de emisión son ErrValidation, ErrConflict,
// ErrDependencyUnavailable, ErrIssuerRejected y ErrNotFound; el resto las refina.
var (
	ErrValidation            = errors.New("la póliza no cumple las condiciones de emisión")
	ErrConflict              = errors.New("conflicto con el estado actual")
	ErrDependencyUnavailable = errors.New("dependencia externa no disponible")
	ErrIssuerRejected        = errors.New("solicitud rechazada por el Issuer")
	ErrNotFound              = errors.New("recurso no encontrado")

	ErrInvalidInput      = errors.New("entrada inválida")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")
	ErrInvalidTransition = fmt.Errorf("%w: transición de estado no permitida", ErrConflict)

	ErrIdempotencyInFlight = fmt.Errorf("%w: ya hay una ejecución en curso para esta Idempotency-Key", ErrConflict)
	ErrIdempotencyKeyReuse = fmt.Errorf("%w: la Idempotency-Key ya se usó con un cuerpo distinto", ErrConflict)
	ErrDuplicateActive     = fmt.Errorf("%w: ya existe una solicitud activa para la póliza, matrícula y compañía", ErrConflict)
	ErrVersionConflict     = fmt.Errorf("%w: la solicitud fue modificada concurrentemente", ErrConflict)

	ErrBreakerOpen = errors.New("circuit breaker abierto")
)

// Códigos estables expuestos a clientes y persistidos en error_code.
const (
	KindValidation            = "VALIDATION_ERROR"
	KindConflict              = "CONFLICT"
	KindDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	KindIssuerRejected        = "ISSUER_REJECTED"
	KindNotFound              = "NOT_FOUND"
	KindInvalidInput          = "INVALID_INPUT"
	KindUnauthorized          = "UNAUTHORIZED"
	KindForbidden             = "FORBIDDEN"
	KindInternal              = "INTERNAL"
)

// ValidationError lista completa de reglas incumplidas (no se corta en la primera).
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DependencyError fallo de transporte, timeout o breaker abierto al llamar a Registry/Issuer.
// Siempre es reintentable.
type DependencyError struct {
	Dependency string // registry | issuer
	Operation  string // search, edition, status, update_status, download
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s.%s: %s: %v", e.Dependency, e.Operation, ErrDependencyUnavailable.Error(), e.Err)
}

// Unwrap permite errors.Is tanto con ErrDependencyUnavailable como con la causa (p. ej. ErrBreakerOpen).
func (e *DependencyError) Unwrap() []error { return []error{ErrDependencyUnavailable, e.Err} }

// IssuerRejectedError código de estado negativo devuelto por el Issuer. No se reintenta.
type IssuerRejectedError struct {
	Code    int
	Message string
}

func (e *IssuerRejectedError) Error() string {
	return fmt.Sprintf("%s: código %d: %s", ErrIssuerRejected.Error(), e.Code, e.Message)
}

func (e *IssuerRejectedError) Unwrap() error { return ErrIssuerRejected }

// Kind clasifica un error en su código estable.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrDependencyUnavailable):
		return KindDependencyUnavailable
	case errors.Is(err, ErrIssuerRejected):
		return KindIssuerRejected
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	default:
		return KindInternal
	}
}

// IsRetryable solo los fallos de disponibilidad son transitorios.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDependencyUnavailable)
}
