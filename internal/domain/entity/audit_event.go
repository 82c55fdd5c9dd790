package entity

import "time"

// AuditEvent transición del ciclo de vida de una solicitud.
type AuditEvent struct {
	RequestID  string    `json:"request_id"`
	Reference  string    `json:"reference"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Actor      string    `json:"actor"` // agent_code del token, "sweeper" o "system"
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
