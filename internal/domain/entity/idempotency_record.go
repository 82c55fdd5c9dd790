package entity

import "time"

// Estados de un registro de idempotencia.
const (
	IdempotencyInFlight = "IN_FLIGHT"
	IdempotencyComplete = "COMPLETE"
)

// Ámbitos: determinan el TTL del registro.
const (
	IdempotencyScopeSingle = "single"
	IdempotencyScopeBatch  = "batch"
)

// IdempotencyRecord asocia una Idempotency-Key a como máximo un resultado.
type IdempotencyRecord struct {
	Key         string
	Scope       string
	Fingerprint string
	Status      string
	Outcome     []byte // resultado serializado, se devuelve tal cual en la repetición
	LockedUntil time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsLive indica si el registro todavía bloquea la clave en el instante now.
// Un marcador IN_FLIGHT con el lease vencido cuenta como ausente (caída del proceso dueño).
func (r *IdempotencyRecord) IsLive(now time.Time) bool {
	if !now.Before(r.ExpiresAt) {
		return false
	}
	if r.Status == IdempotencyInFlight && !now.Before(r.LockedUntil) {
		return false
	}
	return true
}
