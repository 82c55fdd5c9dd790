// Package metrics métricas Prometheus del servicio de emisión.
// Todos los métodos aceptan receptor nil para que los componentes funcionen sin métricas (tests).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/breaker"
)

// Metrics contadores, gauges e histogramas del pipeline.
type Metrics struct {
	// Resultado final de cada pasada del pipeline, por estado alcanzado
	IssuanceOutcome *prometheus.CounterVec

	// Repeticiones servidas desde el almacén de idempotencia y conflictos (en vuelo / clave reutilizada)
	IdempotencyReplays   prometheus.Counter
	IdempotencyConflicts *prometheus.CounterVec

	// 0 = cerrado, 1 = abierto, 2 = semiabierto
	BreakerState      *prometheus.GaugeVec
	BreakerRejected   *prometheus.CounterVec
	DependencyLatency *prometheus.HistogramVec

	SweepRetries *prometheus.CounterVec
	AuditDropped prometheus.Counter
}

// New registra las métricas en reg. En producción reg es prometheus.DefaultRegisterer;
// en tests un prometheus.NewRegistry() para evitar registros duplicados.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IssuanceOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_issuance_outcomes_total",
			Help: "Issuance pipeline outcomes by resulting status and error kind",
		}, []string{"status", "error_kind"}),

		IdempotencyReplays: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_idempotency_replays_total",
			Help: "Requests answered from a stored idempotent outcome",
		}),
		IdempotencyConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_idempotency_conflicts_total",
			Help: "Idempotency conflicts by reason (in_flight, key_reuse)",
		}, []string{"reason"}),

		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "certify_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		}, []string{"breaker"}),
		BreakerRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_circuit_breaker_rejected_total",
			Help: "Calls rejected without reaching the dependency because the breaker was open",
		}, []string{"breaker"}),
		DependencyLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certify_dependency_call_duration_seconds",
			Help:    "Outbound call duration by dependency operation and result",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "result"}),

		SweepRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_sweep_retries_total",
			Help: "Records re-entered by the retry sweep, by result",
		}, []string{"result"}),
		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_audit_events_dropped_total",
			Help: "Audit events that could not be published",
		}),
	}
}

// IncOutcome cuenta el estado alcanzado por una solicitud.
func (m *Metrics) IncOutcome(status, errorKind string) {
	if m != nil {
		m.IssuanceOutcome.WithLabelValues(status, errorKind).Inc()
	}
}

func (m *Metrics) IncReplay() {
	if m != nil {
		m.IdempotencyReplays.Inc()
	}
}

func (m *Metrics) IncIdempotencyConflict(reason string) {
	if m != nil {
		m.IdempotencyConflicts.WithLabelValues(reason).Inc()
	}
}

// BreakerStateChanged se registra como breaker.WithStateChange.
func (m *Metrics) BreakerStateChanged(name string, _, to breaker.State) {
	if m != nil {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
	}
}

func (m *Metrics) IncBreakerRejected(name string) {
	if m != nil {
		m.BreakerRejected.WithLabelValues(name).Inc()
	}
}

// ObserveDependency duración de una llamada saliente; result es ok | rejected | error | breaker_open.
func (m *Metrics) ObserveDependency(operation, result string, d time.Duration) {
	if m != nil {
		m.DependencyLatency.WithLabelValues(operation, result).Observe(d.Seconds())
	}
}

func (m *Metrics) IncSweepRetry(result string) {
	if m != nil {
		m.SweepRetries.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncAuditDropped() {
	if m != nil {
		m.AuditDropped.Inc()
	}
}
