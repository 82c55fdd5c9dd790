// Package audit publica las transiciones del ciclo de vida. La publicación nunca bloquea
// ni falla hacia el llamador: un evento que no se pudo entregar se registra y se descarta.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/metrics"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/config"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

// Publisher destino de eventos de auditoría.
type Publisher interface {
	Publish(ctx context.Context, ev entity.AuditEvent)
	Close()
}

// New elige Kafka si hay brokers configurados; si no, solo log.
func New(cfg config.KafkaConfig, log *logger.Logger, m *metrics.Metrics) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return NewLogPublisher(log), nil
	}
	return NewKafkaPublisher(cfg, log, m)
}

// LogPublisher escribe cada evento en el log estructurado.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &LogPublisher{log: log.Named("audit")}
}

func (p *LogPublisher) Publish(_ context.Context, ev entity.AuditEvent) {
	p.log.Info().
		Str("request_id", ev.RequestID).
		Str("reference", ev.Reference).
		Str("from", ev.From).
		Str("to", ev.To).
		Str("actor", ev.Actor).
		Str("reason", ev.Reason).
		Time("occurred_at", ev.OccurredAt).
		Msg("transición")
}

func (p *LogPublisher) Close() {}

// KafkaPublisher produce en el topic de auditoría con clave = id de la solicitud
// (mantiene el orden de las transiciones de una misma solicitud en la partición).
type KafkaPublisher struct {
	client       *kgo.Client
	log          *logger.Logger
	metrics      *metrics.Metrics
	closeTimeout time.Duration
}

// NewKafkaPublisher crea el cliente; no conecta hasta el primer envío.
func NewKafkaPublisher(cfg config.KafkaConfig, log *logger.Logger, m *metrics.Metrics) (*KafkaPublisher, error) {
	if log == nil {
		log = logger.Nop()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "certify-issuance"
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(cfg.AuditTopic),
		kgo.MaxBufferedRecords(10_000),
		kgo.RecordDeliveryTimeout(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{client: client, log: log.Named("audit"), metrics: m, closeTimeout: 5 * time.Second}, nil
}

// Publish encola el evento sin esperar la confirmación del broker.
func (p *KafkaPublisher) Publish(ctx context.Context, ev entity.AuditEvent) {
	value, err := json.Marshal(ev)
	if err != nil {
		p.drop(ev, err)
		return
	}
	rec := &kgo.Record{Key: []byte(ev.RequestID), Value: value, Timestamp: ev.OccurredAt}
	// El contexto de la petición HTTP termina antes que la entrega: no se propaga.
	p.client.TryProduce(context.WithoutCancel(ctx), rec, func(_ *kgo.Record, err error) {
		if err != nil {
			p.drop(ev, err)
		}
	})
}

// Close espera hasta closeTimeout a que se entreguen los eventos pendientes.
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), p.closeTimeout)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.log.Warn().Err(err).Msg("audit: flush incompleto al cerrar")
	}
	p.client.Close()
}

func (p *KafkaPublisher) drop(ev entity.AuditEvent, err error) {
	p.metrics.IncAuditDropped()
	p.log.Warn().Err(err).
		Str("request_id", ev.RequestID).
		Str("to", ev.To).
		Msg("audit: evento descartado")
}
