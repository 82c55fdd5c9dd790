package issuance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/application/dto"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/certificate"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/repository"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/translation"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/metrics"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/tracing"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
	catalog "github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/issuer"
)

const (
	metadataBatchID        = "batch_id"
	metadataBatchIndex     = "batch_index"
	metadataOperatorReview = "operator_review"

	maxBatchItems = 100
)

// Settings reglas de negocio del pipeline.
type Settings struct {
	CompanyCode      string // compañía por defecto cuando el comando no trae una
	MaxRetries       int
	MarketMultiplier float64
	Freshness        time.Duration // antigüedad máxima del snapshot del Registry en un reintento
}

// CreateCommand datos de una solicitud de emisión. Se serializa para la huella de idempotencia.
type CreateCommand struct {
	PolicyNumber       string         `json:"policy_number"`
	RegistrationNumber string         `json:"registration_number"`
	ChassisNumber      string         `json:"chassis_number,omitempty"`
	CompanyCode        string         `json:"company_code"`
	AgentCode          string         `json:"agent_code,omitempty"`
	OfficeCode         string         `json:"office_code,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

func (c *CreateCommand) normalize(defaultCompany string) {
	c.PolicyNumber = strings.TrimSpace(c.PolicyNumber)
	c.RegistrationNumber = strings.ToUpper(strings.TrimSpace(c.RegistrationNumber))
	c.ChassisNumber = strings.ToUpper(strings.TrimSpace(c.ChassisNumber))
	c.CompanyCode = strings.TrimSpace(c.CompanyCode)
	if c.CompanyCode == "" {
		c.CompanyCode = defaultCompany
	}
	c.AgentCode = strings.TrimSpace(c.AgentCode)
	c.OfficeCode = strings.TrimSpace(c.OfficeCode)
	// batch_id y batch_index los asigna BulkCreate, nunca el cliente.
	_, hasID := c.Metadata[metadataBatchID]
	_, hasIndex := c.Metadata[metadataBatchIndex]
	if hasID || hasIndex {
		c.Metadata = cloneMetadata(c.Metadata)
		delete(c.Metadata, metadataBatchID)
		delete(c.Metadata, metadataBatchIndex)
	}
}

func (c *CreateCommand) validate() error {
	var missing []string
	if c.PolicyNumber == "" {
		missing = append(missing, "policy_number")
	}
	if c.RegistrationNumber == "" {
		missing = append(missing, "registration_number")
	}
	if c.CompanyCode == "" {
		missing = append(missing, "company_code")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: campos obligatorios: %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// Option configuración opcional del orquestador.
type Option func(*Orchestrator)

// WithClock reemplaza la fuente de tiempo.
func WithClock(now Clock) Option { return func(o *Orchestrator) { o.now = now } }

// WithTracer usa el tracer del provider del proceso en lugar del global.
func WithTracer(t trace.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// WithSummaryRenderer habilita el resumen PDF.
func WithSummaryRenderer(s SummaryRenderer) Option { return func(o *Orchestrator) { o.summary = s } }

// Orchestrator ejecuta el pipeline de emisión y las operaciones sobre solicitudes existentes.
//
//	PENDING → REGISTRY_FETCHED → SUBMITTED → ISSUER_PROCESSING → COMPLETED
//
// Cada transición se persiste antes del siguiente paso externo y se publica en la auditoría.
type Orchestrator struct {
	repo     repository.IssuanceRequestRepository
	tx       TxRunner
	registry RegistrySource
	issuer   IssuerGateway
	guard    *IdempotencyGuard
	auditor  Auditor
	summary  SummaryRenderer
	settings Settings
	metrics  *metrics.Metrics
	log      *logger.Logger
	tracer   trace.Tracer
	now      Clock
}

// NewOrchestrator construye el orquestador con todas sus dependencias.
func NewOrchestrator(
	repo repository.IssuanceRequestRepository,
	tx TxRunner,
	registry RegistrySource,
	issuer IssuerGateway,
	guard *IdempotencyGuard,
	auditor Auditor,
	settings Settings,
	m *metrics.Metrics,
	log *logger.Logger,
	opts ...Option,
) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	if settings.MaxRetries < 0 {
		settings.MaxRetries = 0
	}
	o := &Orchestrator{
		repo:     repo,
		tx:       tx,
		registry: registry,
		issuer:   issuer,
		guard:    guard,
		auditor:  auditor,
		settings: settings,
		metrics:  m,
		log:      log.Named("issuance"),
		tracer:   otel.Tracer(tracing.TracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// =============================================================================
// Alta
// =============================================================================

// Create ejecuta el pipeline completo bajo la Idempotency-Key. replayed = true cuando la
// respuesta es la almacenada de una ejecución anterior con el mismo cuerpo.
// Una solicitud que terminó FAILED no es un error: se devuelve con su error_code.
func (o *Orchestrator) Create(ctx context.Context, key string, cmd CreateCommand) (*dto.IssuanceResponse, bool, error) {
	ctx, span := o.tracer.Start(ctx, "issuance.create", trace.WithAttributes(
		attribute.String("policy_number", cmd.PolicyNumber),
	))
	defer span.End()

	key = strings.TrimSpace(key)
	cmd.normalize(o.settings.CompanyCode)
	if err := cmd.validate(); err != nil {
		return nil, false, err
	}
	fp, err := Fingerprint(cmd)
	if err != nil {
		return nil, false, err
	}

	// La emisión aceptada sigue aunque el cliente corte la conexión.
	raw, replayed, err := o.guard.Execute(context.WithoutCancel(ctx), key, entity.IdempotencyScopeSingle, fp,
		func(ctx context.Context) ([]byte, error) {
			r, err := o.createOne(ctx, key, cmd)
			if err != nil {
				return nil, err
			}
			return json.Marshal(dto.ToIssuanceResponse(r))
		})
	if err != nil {
		recordError(span, err)
		return nil, false, err
	}

	var resp dto.IssuanceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("issuance: resultado almacenado ilegible: %w", err)
	}
	span.SetAttributes(attribute.String("reference", resp.ReferenceNumber), attribute.Bool("replayed", replayed))
	return &resp, replayed, nil
}

// BulkCreate recorre los comandos en orden bajo una única clave de lote. Cada elemento usa la
// clave derivada "<clave>:<índice>"; el fallo de uno no detiene al resto.
func (o *Orchestrator) BulkCreate(ctx context.Context, key string, cmds []CreateCommand) (*dto.BatchIssuanceResponse, bool, error) {
	ctx, span := o.tracer.Start(ctx, "issuance.bulk_create", trace.WithAttributes(attribute.Int("items", len(cmds))))
	defer span.End()

	if len(cmds) == 0 {
		return nil, false, fmt.Errorf("%w: el lote está vacío", domain.ErrInvalidInput)
	}
	if len(cmds) > maxBatchItems {
		return nil, false, fmt.Errorf("%w: el lote admite como máximo %d elementos", domain.ErrInvalidInput, maxBatchItems)
	}
	key = strings.TrimSpace(key)
	for i := range cmds {
		cmds[i].normalize(o.settings.CompanyCode)
	}
	fp, err := Fingerprint(cmds)
	if err != nil {
		return nil, false, err
	}

	raw, replayed, err := o.guard.Execute(context.WithoutCancel(ctx), key, entity.IdempotencyScopeBatch, fp,
		func(ctx context.Context) ([]byte, error) {
			out := dto.BatchIssuanceResponse{BatchID: uuid.NewString(), Items: make([]dto.BatchItemResponse, 0, len(cmds))}
			for i, cmd := range cmds {
				item := dto.BatchItemResponse{Index: i}
				cmd.Metadata = withBatch(cmd.Metadata, out.BatchID, i)

				r, err := o.createItem(ctx, fmt.Sprintf("%s:%d", key, i), cmd)
				switch {
				case err != nil:
					item.Error = &dto.ErrorResponse{Code: domain.Kind(err), Message: err.Error()}
					out.Failed++
				default:
					resp := dto.ToIssuanceResponse(r)
					item.Request = &resp
					if r.Status == entity.StatusFailed {
						out.Failed++
					} else {
						out.Succeeded++
					}
				}
				out.Items = append(out.Items, item)
			}
			return json.Marshal(out)
		})
	if err != nil {
		recordError(span, err)
		return nil, false, err
	}

	var resp dto.BatchIssuanceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("issuance: resultado de lote ilegible: %w", err)
	}
	return &resp, replayed, nil
}

func (o *Orchestrator) createItem(ctx context.Context, key string, cmd CreateCommand) (*entity.IssuanceRequest, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	return o.createOne(ctx, key, cmd)
}

func (o *Orchestrator) createOne(ctx context.Context, key string, cmd CreateCommand) (*entity.IssuanceRequest, error) {
	// ── 1. Clave ya asociada a una solicitud (registro de idempotencia vencido) ──
	if key != "" {
		existing, err := o.repo.GetByIdempotencyKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("issuance: buscar por clave: %w", err)
		}
		if existing != nil {
			if !sameOrigin(existing, cmd) {
				return nil, domain.ErrIdempotencyKeyReuse
			}
			return existing, nil
		}
	}

	// ── 2. Una sola solicitud activa por póliza, matrícula y compañía ──
	dup := entity.DuplicateKey{PolicyNumber: cmd.PolicyNumber, RegistrationNumber: cmd.RegistrationNumber, CompanyCode: cmd.CompanyCode}
	active, err := o.repo.FindActive(ctx, dup)
	if err != nil {
		return nil, fmt.Errorf("issuance: buscar activa: %w", err)
	}
	if active != nil {
		return nil, fmt.Errorf("%w (%s)", domain.ErrDuplicateActive, active.ReferenceNumber)
	}

	// ── 3. Alta en PENDING (el índice único resuelve la carrera con otra alta) ──
	now := o.now()
	r := &entity.IssuanceRequest{
		ID:                 uuid.NewString(),
		ReferenceNumber:    newReference(now),
		IdempotencyKey:     key,
		Status:             entity.StatusPending,
		PolicyNumber:       cmd.PolicyNumber,
		RegistrationNumber: cmd.RegistrationNumber,
		ChassisNumber:      cmd.ChassisNumber,
		CompanyCode:        cmd.CompanyCode,
		AgentCode:          cmd.AgentCode,
		OfficeCode:         cmd.OfficeCode,
		MaxRetries:         o.settings.MaxRetries,
		Retryable:          true,
		Metadata:           cloneMetadata(cmd.Metadata),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := o.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("issuance: crear solicitud: %w", err)
	}
	o.publish(ctx, r, "", "")
	o.log.Info().Str("request_id", r.ID).Str("reference", r.ReferenceNumber).Str("policy_number", r.PolicyNumber).Msg("solicitud creada")

	// ── 4. Pipeline ──
	r, err = o.run(ctx, r)
	if err != nil {
		return nil, err
	}
	o.metrics.IncOutcome(r.Status, r.ErrorCode)
	return r, nil
}

// =============================================================================
// Pipeline
// =============================================================================

// run avanza una solicitud PENDING o REGISTRY_FETCHED hasta donde llegue. Los fallos de negocio
// o de disponibilidad quedan en la solicitud (FAILED); solo los errores de persistencia se devuelven.
func (o *Orchestrator) run(ctx context.Context, r *entity.IssuanceRequest) (*entity.IssuanceRequest, error) {
	if r.Status != entity.StatusPending && r.Status != entity.StatusRegistryFetched {
		return r, nil
	}

	// ── 1. Registry + validación ──
	if r.Status == entity.StatusPending || certificate.IsStale(r, o.settings.Freshness, o.now()) {
		// Snapshot vencido: la relectura no puede salir de la caché.
		if inv, ok := o.registry.(RegistryInvalidator); ok && r.Status == entity.StatusRegistryFetched {
			inv.Invalidate(r.PolicyNumber)
		}
		policy, errs, err := o.FetchAndValidate(ctx, r.PolicyNumber, certificate.CrossCheck{
			RegistrationNumber: r.RegistrationNumber,
			ChassisNumber:      r.ChassisNumber,
		})
		if err != nil {
			return o.fail(ctx, r, err)
		}
		if len(errs) > 0 {
			return o.fail(ctx, r, certificate.AsError(errs))
		}
		from := r.Status
		if err := certificate.MarkRegistryFetched(r, policy, o.now()); err != nil {
			return r, err
		}
		if stop, err := o.persist(ctx, r, from, "", false); stop || err != nil {
			return r, err
		}
	}

	// ── 2. Traducción ──
	tr := translation.Translate(r.RegistrySnapshot, o.now(), translation.Options{
		CompanyCode:      r.CompanyCode,
		AgentCode:        r.AgentCode,
		OfficeCode:       r.OfficeCode,
		MarketMultiplier: o.settings.MarketMultiplier,
	})
	r.TotalPremium = decimal.NewFromInt(tr.Premium.Total)
	from := r.Status
	if err := certificate.MarkSubmitted(r, &tr.Envelope, o.now()); err != nil {
		return r, err
	}
	if stop, err := o.persist(ctx, r, from, "", false); stop || err != nil {
		return r, err
	}

	// ── 3. Envío al Issuer ──
	res, err := o.issuer.SubmitEdition(ctx, &tr.Envelope)
	if err != nil {
		return o.fail(ctx, r, err)
	}

	// ── 4. Resultado: prevalece sobre una anulación o suspensión concurrente ──
	from = r.Status
	if res.Issued && res.CertificateNumber != "" {
		err = certificate.MarkCompleted(r, res, o.now())
	} else {
		err = certificate.MarkIssuerProcessing(r, res.RequestNumber, o.now())
	}
	if err != nil {
		return r, err
	}
	if _, err := o.persist(ctx, r, from, "", true); err != nil {
		return r, err
	}
	return r, nil
}

// fail registra el fallo en la solicitud. Los resultados de un envío ya hecho prevalecen
// sobre cambios concurrentes igual que un éxito.
func (o *Orchestrator) fail(ctx context.Context, r *entity.IssuanceRequest, cause error) (*entity.IssuanceRequest, error) {
	from := r.Status
	if err := certificate.MarkFailed(r, cause, o.now()); err != nil {
		return r, err
	}
	var rej *domain.IssuerRejectedError
	if errors.As(cause, &rej) && catalog.NeedsOperatorReview[rej.Code] {
		if r.Metadata == nil {
			r.Metadata = map[string]any{}
		}
		r.Metadata[metadataOperatorReview] = true
		o.log.Warn().Str("reference", r.ReferenceNumber).Int("issuer_code", rej.Code).Msg("rechazo que requiere revisión manual")
	}
	o.log.Info().
		Str("request_id", r.ID).
		Str("reference", r.ReferenceNumber).
		Str("status", r.Status).
		Str("error_code", r.ErrorCode).
		Bool("retryable", r.CanRetry()).
		Err(cause).
		Msg("solicitud fallida")
	if _, err := o.persist(ctx, r, from, r.ErrorCode, from == entity.StatusSubmitted || from == entity.StatusIssuerProcessing); err != nil {
		return r, err
	}
	return r, nil
}

// persist escribe la transición from -> r.Status. Ante una modificación concurrente:
// con supersede el resultado se aplica sobre la versión actual (salvo COMPLETED); sin él,
// r pasa a ser la versión actual y stop indica que el pipeline no debe seguir.
func (o *Orchestrator) persist(ctx context.Context, r *entity.IssuanceRequest, from, reason string, supersede bool) (stop bool, err error) {
	err = o.repo.Update(ctx, r)
	switch {
	case err == nil:
		o.publish(ctx, r, from, reason)
		return false, nil
	case !errors.Is(err, domain.ErrVersionConflict):
		return false, fmt.Errorf("issuance: persistir %s: %w", r.Status, err)
	case supersede:
		return false, o.supersede(ctx, r, reason)
	}

	latest, gerr := o.repo.GetByID(ctx, r.ID)
	if gerr != nil || latest == nil {
		return true, fmt.Errorf("issuance: recargar %s: %w", r.ReferenceNumber, errors.Join(err, gerr))
	}
	o.log.Info().Str("reference", r.ReferenceNumber).Str("status", latest.Status).Msg("modificada concurrentemente; el pipeline se detiene")
	*r = *latest
	return true, nil
}

func (o *Orchestrator) supersede(ctx context.Context, r *entity.IssuanceRequest, reason string) error {
	var prev string
	applied := false
	err := o.tx.RunInTx(ctx, func(repo repository.IssuanceRequestRepository) error {
		latest, err := repo.GetForUpdate(ctx, r.ID)
		if err != nil {
			return err
		}
		if latest == nil {
			return fmt.Errorf("%w: solicitud %s", domain.ErrNotFound, r.ID)
		}
		prev = latest.Status
		if err := certificate.Supersede(latest, r); err != nil {
			// COMPLETED no se pisa: queda la versión actual.
			*r = *latest
			return nil
		}
		if err := repo.Update(ctx, latest); err != nil {
			return err
		}
		*r = *latest
		applied = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("issuance: aplicar resultado sobre %s: %w", r.ReferenceNumber, err)
	}
	if applied {
		o.log.Info().Str("reference", r.ReferenceNumber).Str("from", prev).Str("to", r.Status).Msg("resultado del Issuer aplicado sobre cambio concurrente")
		o.publish(ctx, r, prev, reason)
	}
	return nil
}

// FetchAndValidate lee la póliza y devuelve todas las reglas que incumple.
// Un error solo indica que el Registry no respondió.
func (o *Orchestrator) FetchAndValidate(ctx context.Context, policyNumber string, cc certificate.CrossCheck) (*entity.RegistryPolicy, []string, error) {
	ctx, span := o.tracer.Start(ctx, "issuance.fetch_and_validate")
	defer span.End()

	policy, err := o.registry.GetPolicy(ctx, policyNumber)
	if err != nil {
		recordError(span, err)
		return nil, nil, err
	}
	return policy, certificate.ValidatePolicy(policy, o.now(), cc), nil
}

// =============================================================================
// Operaciones sobre solicitudes existentes
// =============================================================================

// Retry reentra una solicitud FAILED reintentable en el pipeline. Reutiliza el snapshot del
// Registry salvo que supere la frescura configurada. Una modificación concurrente devuelve
// domain.ErrVersionConflict sin efectos.
func (o *Orchestrator) Retry(ctx context.Context, id string) (*dto.IssuanceResponse, error) {
	ctx, span := o.tracer.Start(ctx, "issuance.retry", trace.WithAttributes(attribute.String("request_id", id)))
	defer span.End()
	ctx = context.WithoutCancel(ctx)

	r, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	// Otra solicitud activa ocupa la tupla (p. ej. un reenvío con clave nueva): el reintento
	// nunca podrá avanzar, así que la solicitud deja de ser reintentable.
	if r.CanRetry() {
		active, err := o.repo.FindActive(ctx, r.Key())
		if err != nil {
			return nil, fmt.Errorf("issuance: buscar activa: %w", err)
		}
		if active != nil {
			return nil, o.retire(ctx, r, active.ReferenceNumber)
		}
	}
	from := r.Status
	if err := certificate.BeginRetry(r, o.now()); err != nil {
		return nil, err
	}
	if err := o.repo.Update(ctx, r); err != nil {
		if !errors.Is(err, domain.ErrDuplicateActive) {
			return nil, fmt.Errorf("issuance: reintentar %s: %w", r.ReferenceNumber, err)
		}
		// Alta concurrente de la misma tupla entre la comprobación y la escritura.
		if r, err = o.load(ctx, id); err != nil {
			return nil, err
		}
		return nil, o.retire(ctx, r, "")
	}
	o.publish(ctx, r, from, fmt.Sprintf("reintento %d/%d", r.RetryCount, r.MaxRetries))

	r, err = o.run(ctx, r)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	o.metrics.IncOutcome(r.Status, r.ErrorCode)
	resp := dto.ToIssuanceResponse(r)
	return &resp, nil
}

// retire deja FAILED definitivo una solicitud cuya tupla ya está ocupada por otra activa y
// devuelve domain.ErrDuplicateActive.
func (o *Orchestrator) retire(ctx context.Context, r *entity.IssuanceRequest, activeReference string) error {
	cause := domain.ErrDuplicateActive
	if activeReference != "" {
		cause = fmt.Errorf("%w (%s)", domain.ErrDuplicateActive, activeReference)
	}
	if !r.CanRetry() {
		return cause
	}
	from := r.Status
	if err := certificate.Retire(r, cause, o.now()); err != nil {
		return err
	}
	if err := o.repo.Update(ctx, r); err != nil {
		return fmt.Errorf("issuance: retirar %s: %w", r.ReferenceNumber, errors.Join(cause, err))
	}
	o.publish(ctx, r, from, cause.Error())
	o.log.Warn().Str("reference", r.ReferenceNumber).Str("active_reference", activeReference).Msg("reintento descartado: hay otra solicitud activa")
	o.metrics.IncOutcome(r.Status, r.ErrorCode)
	return cause
}

// RefreshStatus consulta al Issuer una solicitud ISSUER_PROCESSING y la completa si ya fue emitida.
func (o *Orchestrator) RefreshStatus(ctx context.Context, id string) (*dto.IssuanceResponse, error) {
	ctx, span := o.tracer.Start(ctx, "issuance.refresh_status", trace.WithAttributes(attribute.String("request_id", id)))
	defer span.End()

	r, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case entity.StatusCompleted:
		resp := dto.ToIssuanceResponse(r)
		return &resp, nil
	case entity.StatusIssuerProcessing:
	default:
		return nil, fmt.Errorf("%w: solo se consulta una solicitud en %s (estado %s)",
			domain.ErrInvalidTransition, entity.StatusIssuerProcessing, r.Status)
	}

	res, err := o.issuer.GetStatus(ctx, r.IssuerReference)
	var rej *domain.IssuerRejectedError
	switch {
	case errors.As(err, &rej):
		if r, err = o.fail(ctx, r, err); err != nil {
			return nil, err
		}
	case err != nil:
		recordError(span, err)
		return nil, err
	case res.Issued:
		from := r.Status
		if err := certificate.MarkCompleted(r, res, o.now()); err != nil {
			return nil, err
		}
		if _, err := o.persist(ctx, r, from, "", true); err != nil {
			return nil, err
		}
		o.metrics.IncOutcome(r.Status, "")
	}
	resp := dto.ToIssuanceResponse(r)
	return &resp, nil
}

// Cancel anula la solicitud e informa al Issuer si ya tiene número de solicitud.
func (o *Orchestrator) Cancel(ctx context.Context, id, reason string) (*dto.IssuanceResponse, error) {
	return o.stop(ctx, id, catalog.ActionCancel, reason, certificate.Cancel)
}

// Suspend igual que Cancel pero reversible con Resume.
func (o *Orchestrator) Suspend(ctx context.Context, id, reason string) (*dto.IssuanceResponse, error) {
	return o.stop(ctx, id, catalog.ActionSuspend, reason, certificate.Suspend)
}

func (o *Orchestrator) stop(
	ctx context.Context,
	id, action, reason string,
	apply func(*entity.IssuanceRequest, bool, time.Time) error,
) (*dto.IssuanceResponse, error) {
	ctx, span := o.tracer.Start(ctx, "issuance."+strings.ToLower(action), trace.WithAttributes(attribute.String("request_id", id)))
	defer span.End()

	r, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}

	// Un certificado emitido solo se detiene si todavía no fue transferido.
	notTransferred := false
	if certificate.Issued(r) {
		res, err := o.issuer.GetStatus(ctx, r.IssuerReference)
		if err != nil {
			recordError(span, err)
			return nil, err
		}
		notTransferred = !res.Transferred
	}

	from := r.Status
	if err := apply(r, notTransferred, o.now()); err != nil {
		return nil, err
	}
	if r.IssuerReference != "" {
		if _, err := o.issuer.UpdateStatus(ctx, r.IssuerReference, action); err != nil {
			var rej *domain.IssuerRejectedError
			if errors.As(err, &rej) && (rej.Code == catalog.StatusAlreadyTransferred || rej.Code == catalog.StatusStateNotAllowed) {
				return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTransition, rej.Message)
			}
			recordError(span, err)
			return nil, err
		}
	}
	if err := o.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("issuance: %s %s: %w", strings.ToLower(action), r.ReferenceNumber, err)
	}
	o.publish(ctx, r, from, reason)
	resp := dto.ToIssuanceResponse(r)
	return &resp, nil
}

// Resume reanuda una solicitud suspendida. Si no estaba emitida vuelve a recorrer el pipeline
// desde la consulta al Registry.
func (o *Orchestrator) Resume(ctx context.Context, id, reason string) (*dto.IssuanceResponse, error) {
	ctx, span := o.tracer.Start(ctx, "issuance.resume", trace.WithAttributes(attribute.String("request_id", id)))
	defer span.End()
	ctx = context.WithoutCancel(ctx)

	r, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	from := r.Status
	if err := certificate.Resume(r, o.now()); err != nil {
		return nil, err
	}
	if err := o.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("issuance: reanudar %s: %w", r.ReferenceNumber, err)
	}
	o.publish(ctx, r, from, reason)

	if r.Status == entity.StatusPending {
		if r, err = o.run(ctx, r); err != nil {
			return nil, err
		}
		o.metrics.IncOutcome(r.Status, r.ErrorCode)
	}
	resp := dto.ToIssuanceResponse(r)
	return &resp, nil
}

// Download devuelve los enlaces del certificado emitido, renovándolos si vencieron.
func (o *Orchestrator) Download(ctx context.Context, id string) (*dto.DownloadResponse, error) {
	ctx, span := o.tracer.Start(ctx, "issuance.download", trace.WithAttributes(attribute.String("request_id", id)))
	defer span.End()

	r, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	var res *entity.IssuerResult
	if r.Status == entity.StatusCompleted && certificate.DownloadExpired(r, o.now()) {
		if res, err = o.issuer.GetDownloadLinks(ctx, r.IssuerReference); err != nil {
			recordError(span, err)
			return nil, err
		}
	}
	if err := certificate.RecordDownload(r, res, o.now()); err != nil {
		return nil, err
	}
	if err := o.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("issuance: registrar descarga %s: %w", r.ReferenceNumber, err)
	}

	links := catalog.DeriveLinks(r.DownloadURL)
	return &dto.DownloadResponse{
		ReferenceNumber:   r.ReferenceNumber,
		CertificateNumber: r.CertificateNumber,
		DownloadURL:       r.DownloadURL,
		ImageURL:          links[catalog.LinkImage],
		QRCodeURL:         links[catalog.LinkQRCode],
		ExpiresAt:         r.DownloadExpiresAt,
		DownloadCount:     r.DownloadCount,
	}, nil
}

// Summary PDF con la solicitud, el desglose de prima y el certificado.
func (o *Orchestrator) Summary(ctx context.Context, id string) ([]byte, string, error) {
	if o.summary == nil {
		return nil, "", errors.New("issuance: resumen PDF no configurado")
	}
	r, err := o.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if r.RegistrySnapshot == nil {
		return nil, "", fmt.Errorf("%w: la solicitud %s aún no tiene datos del Registry", domain.ErrInvalidTransition, r.ReferenceNumber)
	}
	pdf, err := o.summary.RenderSummary(ctx, r)
	if err != nil {
		return nil, "", fmt.Errorf("issuance: generar resumen: %w", err)
	}
	return pdf, fmt.Sprintf("resumen_%s.pdf", r.ReferenceNumber), nil
}

// Get por id o por número de referencia.
func (o *Orchestrator) Get(ctx context.Context, id string) (*dto.IssuanceResponse, error) {
	r, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := dto.ToIssuanceResponse(r)
	return &resp, nil
}

// List listado paginado con filtros de estado, póliza y compañía.
func (o *Orchestrator) List(ctx context.Context, filter entity.IssuanceFilter) (*dto.IssuanceListResponse, error) {
	page := dto.PageRequest{Limit: filter.Limit, Offset: filter.Offset}
	page.DefaultPage()
	filter.Limit, filter.Offset = page.Limit, page.Offset

	items, total, err := o.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("issuance: listar: %w", err)
	}
	out := &dto.IssuanceListResponse{
		Items: make([]dto.IssuanceResponse, 0, len(items)),
		Page: dto.PageResponse{
			Limit:   filter.Limit,
			Offset:  filter.Offset,
			Total:   total,
			HasMore: filter.Offset+len(items) < total,
		},
	}
	for _, r := range items {
		out.Items = append(out.Items, dto.ToIssuanceResponse(r))
	}
	return out, nil
}

// SearchPolicies consulta paginada al Registry.
func (o *Orchestrator) SearchPolicies(ctx context.Context, criteria entity.RegistrySearchCriteria) (*dto.PolicySearchResponse, error) {
	page, err := o.registry.Search(ctx, criteria)
	if err != nil {
		return nil, err
	}
	return &dto.PolicySearchResponse{
		Items: page.Items,
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: page.Total, HasMore: page.HasMore},
	}, nil
}

// CheckPolicy lee la póliza y evalúa si hoy se podría emitir su certificado.
func (o *Orchestrator) CheckPolicy(ctx context.Context, policyNumber string, cc certificate.CrossCheck) (*dto.PolicyCheckResponse, error) {
	policy, errs, err := o.FetchAndValidate(ctx, strings.TrimSpace(policyNumber), cc)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: póliza %s", domain.ErrNotFound, policyNumber)
	}
	return &dto.PolicyCheckResponse{Policy: policy, Eligible: len(errs) == 0, Errors: errs}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (o *Orchestrator) load(ctx context.Context, id string) (*entity.IssuanceRequest, error) {
	r, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("issuance: obtener %s: %w", id, err)
	}
	if r == nil {
		if r, err = o.repo.GetByReference(ctx, id); err != nil {
			return nil, fmt.Errorf("issuance: obtener %s: %w", id, err)
		}
	}
	if r == nil {
		return nil, fmt.Errorf("%w: solicitud %s", domain.ErrNotFound, id)
	}
	return r, nil
}

func (o *Orchestrator) publish(ctx context.Context, r *entity.IssuanceRequest, from, reason string) {
	if o.auditor == nil {
		return
	}
	o.auditor.Publish(ctx, entity.AuditEvent{
		RequestID:  r.ID,
		Reference:  r.ReferenceNumber,
		From:       from,
		To:         r.Status,
		Actor:      ActorFrom(ctx),
		Reason:     reason,
		OccurredAt: o.now(),
	})
}

// newReference CRT-YYYYMMDD-XXXXXXXX.
func newReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("CRT-%s-%s", now.UTC().Format("20060102"), suffix)
}

// sameOrigin la solicitud guardada bajo una clave corresponde al comando: misma tupla y mismo
// origen (alta individual o elemento de lote).
func sameOrigin(existing *entity.IssuanceRequest, cmd CreateCommand) bool {
	if existing.PolicyNumber != cmd.PolicyNumber ||
		existing.RegistrationNumber != cmd.RegistrationNumber ||
		existing.CompanyCode != cmd.CompanyCode {
		return false
	}
	_, storedInBatch := existing.Metadata[metadataBatchID]
	_, cmdInBatch := cmd.Metadata[metadataBatchID]
	return storedInBatch == cmdInBatch
}

func withBatch(md map[string]any, batchID string, index int) map[string]any {
	out := cloneMetadata(md)
	if out == nil {
		out = map[string]any{}
	}
	out[metadataBatchID] = batchID
	out[metadataBatchIndex] = index
	return out
}

func cloneMetadata(md map[string]any) map[string]any {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, domain.Kind(err))
}
