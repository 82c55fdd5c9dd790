package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/repository"
)

var _ repository.IssuanceRequestRepository = (*IssuanceRequestRepo)(nil)

const (
	constraintActiveTuple    = "uq_issuance_active_tuple"
	constraintIdempotencyKey = "uq_issuance_idempotency_key"
)

const issuanceColumns = `
	id, reference_number, issuer_reference, idempotency_key, status,
	policy_number, registration_number, chassis_number, company_code, agent_code, office_code,
	retry_count, max_retries, retryable, error_code, error_message, error_detail,
	certificate_number, card_number, total_premium,
	download_url, download_expires_at, download_count,
	metadata, registry_snapshot, registry_fetched_at, envelope,
	version, created_at, updated_at, processed_at`

// IssuanceRequestRepo implementación de IssuanceRequestRepository (usable con pool o tx).
type IssuanceRequestRepo struct {
	q Querier
}

// NewIssuanceRequestRepository construye el adaptador. Pasar pool o tx (Querier).
func NewIssuanceRequestRepository(q Querier) *IssuanceRequestRepo {
	return &IssuanceRequestRepo{q: q}
}

// Create persiste la solicitud con versión 1.
func (r *IssuanceRequestRepo) Create(ctx context.Context, req *entity.IssuanceRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Version == 0 {
		req.Version = 1
	}
	cols, err := encodeJSONColumns(req)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO issuance_requests (` + issuanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		        $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`
	_, err = r.q.Exec(ctx, query,
		req.ID, req.ReferenceNumber, nullIfEmpty(req.IssuerReference), nullIfEmpty(req.IdempotencyKey), req.Status,
		req.PolicyNumber, req.RegistrationNumber, nullIfEmpty(req.ChassisNumber), req.CompanyCode,
		nullIfEmpty(req.AgentCode), nullIfEmpty(req.OfficeCode),
		req.RetryCount, req.MaxRetries, req.Retryable, nullIfEmpty(req.ErrorCode), nullIfEmpty(req.ErrorMessage), cols.errorDetail,
		nullIfEmpty(req.CertificateNumber), nullIfEmpty(req.CardNumber), req.TotalPremium,
		nullIfEmpty(req.DownloadURL), req.DownloadExpiresAt, req.DownloadCount,
		cols.metadata, cols.snapshot, req.RegistryFetchedAt, cols.envelope,
		req.Version, req.CreatedAt, req.UpdatedAt, req.ProcessedAt,
	)
	if err != nil {
		return mapWriteError("insert issuance request", err)
	}
	return nil
}

// Update escribe todos los campos mutables si la versión coincide.
func (r *IssuanceRequestRepo) Update(ctx context.Context, req *entity.IssuanceRequest) error {
	cols, err := encodeJSONColumns(req)
	if err != nil {
		return err
	}
	query := `
		UPDATE issuance_requests
		SET issuer_reference    = $3,
		    status              = $4,
		    chassis_number      = $5,
		    office_code         = $6,
		    retry_count         = $7,
		    max_retries         = $8,
		    retryable           = $9,
		    error_code          = $10,
		    error_message       = $11,
		    error_detail        = $12,
		    certificate_number  = $13,
		    card_number         = $14,
		    total_premium       = $15,
		    download_url        = $16,
		    download_expires_at = $17,
		    download_count      = $18,
		    metadata            = $19,
		    registry_snapshot   = $20,
		    registry_fetched_at = $21,
		    envelope            = $22,
		    updated_at          = $23,
		    processed_at        = $24,
		    version             = version + 1
		WHERE id = $1 AND version = $2`
	tag, err := r.q.Exec(ctx, query,
		req.ID, req.Version,
		nullIfEmpty(req.IssuerReference), req.Status, nullIfEmpty(req.ChassisNumber), nullIfEmpty(req.OfficeCode),
		req.RetryCount, req.MaxRetries, req.Retryable,
		nullIfEmpty(req.ErrorCode), nullIfEmpty(req.ErrorMessage), cols.errorDetail,
		nullIfEmpty(req.CertificateNumber), nullIfEmpty(req.CardNumber), req.TotalPremium,
		nullIfEmpty(req.DownloadURL), req.DownloadExpiresAt, req.DownloadCount,
		cols.metadata, cols.snapshot, req.RegistryFetchedAt, cols.envelope,
		req.UpdatedAt, req.ProcessedAt,
	)
	if err != nil {
		return mapWriteError("update issuance request", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s (versión %d)", domain.ErrVersionConflict, req.ReferenceNumber, req.Version)
	}
	req.Version++
	return nil
}

// GetByID obtiene una solicitud por ID.
func (r *IssuanceRequestRepo) GetByID(ctx context.Context, id string) (*entity.IssuanceRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return r.getOne(ctx, "get issuance request", `SELECT `+issuanceColumns+` FROM issuance_requests WHERE id = $1`, id)
}

// GetForUpdate obtiene la solicitud y bloquea la fila (SELECT FOR UPDATE). Solo tiene sentido dentro de una tx.
func (r *IssuanceRequestRepo) GetForUpdate(ctx context.Context, id string) (*entity.IssuanceRequest, error) {
	return r.getOne(ctx, "get issuance request for update",
		`SELECT `+issuanceColumns+` FROM issuance_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *IssuanceRequestRepo) GetByReference(ctx context.Context, reference string) (*entity.IssuanceRequest, error) {
	return r.getOne(ctx, "get issuance request by reference",
		`SELECT `+issuanceColumns+` FROM issuance_requests WHERE reference_number = $1`, reference)
}

func (r *IssuanceRequestRepo) GetByIdempotencyKey(ctx context.Context, key string) (*entity.IssuanceRequest, error) {
	return r.getOne(ctx, "get issuance request by idempotency key",
		`SELECT `+issuanceColumns+` FROM issuance_requests WHERE idempotency_key = $1`, key)
}

// FindActive busca la solicitud activa de la tupla (póliza, matrícula, compañía).
func (r *IssuanceRequestRepo) FindActive(ctx context.Context, key entity.DuplicateKey) (*entity.IssuanceRequest, error) {
	query := `
		SELECT ` + issuanceColumns + `
		FROM issuance_requests
		WHERE policy_number = $1 AND registration_number = $2 AND company_code = $3
		  AND status = ANY($4)
		LIMIT 1`
	return r.getOne(ctx, "find active issuance request", query,
		key.PolicyNumber, key.RegistrationNumber, key.CompanyCode, entity.ActiveStatuses)
}

// ListRetryable FAILED reintentables por updated_at ascendente (usa ix_issuance_retryable).
func (r *IssuanceRequestRepo) ListRetryable(ctx context.Context, limit int) ([]*entity.IssuanceRequest, error) {
	query := `
		SELECT ` + issuanceColumns + `
		FROM issuance_requests
		WHERE status = 'FAILED' AND retryable AND retry_count < max_retries
		ORDER BY updated_at ASC
		LIMIT $1`
	return r.list(ctx, "list retryable", query, limit)
}

// ListProcessingOlderThan ISSUER_PROCESSING sin actividad desde before.
func (r *IssuanceRequestRepo) ListProcessingOlderThan(ctx context.Context, before time.Time, limit int) ([]*entity.IssuanceRequest, error) {
	query := `
		SELECT ` + issuanceColumns + `
		FROM issuance_requests
		WHERE status = 'ISSUER_PROCESSING' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`
	return r.list(ctx, "list processing", query, before, limit)
}

// List listado paginado más el total de filas que cumplen el filtro.
func (r *IssuanceRequestRepo) List(ctx context.Context, f entity.IssuanceFilter) ([]*entity.IssuanceRequest, int, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.PolicyNumber != "" {
		add("policy_number = $%d", f.PolicyNumber)
	}
	if f.CompanyCode != "" {
		add("company_code = $%d", f.CompanyCode)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM issuance_requests`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count issuance requests: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, max(f.Offset, 0))
	query := `SELECT ` + issuanceColumns + ` FROM issuance_requests` + clause +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	items, err := r.list(ctx, "list issuance requests", query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *IssuanceRequestRepo) getOne(ctx context.Context, op, query string, args ...any) (*entity.IssuanceRequest, error) {
	req, err := scanIssuance(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return req, nil
}

func (r *IssuanceRequestRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.IssuanceRequest, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var list []*entity.IssuanceRequest
	for rows.Next() {
		req, err := scanIssuance(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		list = append(list, req)
	}
	return list, rows.Err()
}

func scanIssuance(row pgx.Row) (*entity.IssuanceRequest, error) {
	var req entity.IssuanceRequest
	var issuerRef, idemKey, chassis, agent, office, errCode, errMsg, certNumber, cardNumber, downloadURL *string
	var errorDetail, metadata, snapshot, envelope []byte
	err := row.Scan(
		&req.ID, &req.ReferenceNumber, &issuerRef, &idemKey, &req.Status,
		&req.PolicyNumber, &req.RegistrationNumber, &chassis, &req.CompanyCode, &agent, &office,
		&req.RetryCount, &req.MaxRetries, &req.Retryable, &errCode, &errMsg, &errorDetail,
		&certNumber, &cardNumber, &req.TotalPremium,
		&downloadURL, &req.DownloadExpiresAt, &req.DownloadCount,
		&metadata, &snapshot, &req.RegistryFetchedAt, &envelope,
		&req.Version, &req.CreatedAt, &req.UpdatedAt, &req.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	req.IssuerReference = derefStr(issuerRef)
	req.IdempotencyKey = derefStr(idemKey)
	req.ChassisNumber = derefStr(chassis)
	req.AgentCode = derefStr(agent)
	req.OfficeCode = derefStr(office)
	req.ErrorCode = derefStr(errCode)
	req.ErrorMessage = derefStr(errMsg)
	req.CertificateNumber = derefStr(certNumber)
	req.CardNumber = derefStr(cardNumber)
	req.DownloadURL = derefStr(downloadURL)

	if err := fromJSONB(errorDetail, &req.ErrorDetail); err != nil {
		return nil, err
	}
	if err := fromJSONB(metadata, &req.Metadata); err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		req.RegistrySnapshot = &entity.RegistryPolicy{}
		if err := fromJSONB(snapshot, req.RegistrySnapshot); err != nil {
			return nil, err
		}
	}
	if len(envelope) > 0 {
		req.Envelope = &entity.IssuerEnvelope{}
		if err := fromJSONB(envelope, req.Envelope); err != nil {
			return nil, err
		}
	}
	return &req, nil
}

type jsonColumns struct {
	errorDetail, metadata, snapshot, envelope []byte
}

func encodeJSONColumns(req *entity.IssuanceRequest) (jsonColumns, error) {
	var cols jsonColumns
	var err error
	if len(req.ErrorDetail) > 0 {
		if cols.errorDetail, err = toJSONB(req.ErrorDetail); err != nil {
			return cols, err
		}
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if cols.metadata, err = toJSONB(metadata); err != nil {
		return cols, err
	}
	if req.RegistrySnapshot != nil {
		if cols.snapshot, err = toJSONB(req.RegistrySnapshot); err != nil {
			return cols, err
		}
	}
	if req.Envelope != nil {
		if cols.envelope, err = toJSONB(req.Envelope); err != nil {
			return cols, err
		}
	}
	return cols, nil
}

// mapWriteError traduce las violaciones de los índices únicos a errores de dominio.
func mapWriteError(op string, err error) error {
	if !isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch violatedConstraint(err) {
	case constraintActiveTuple:
		return fmt.Errorf("%s: %w", op, domain.ErrDuplicateActive)
	case constraintIdempotencyKey:
		return fmt.Errorf("%s: %w: idempotency_key ya registrada", op, domain.ErrConflict)
	default:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConflict, err)
	}
}
