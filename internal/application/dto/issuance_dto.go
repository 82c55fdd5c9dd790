package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
)

// CreateIssuanceRequest body para POST /api/certificates.
// CompanyCode y AgentCode vacíos se toman del token.
type CreateIssuanceRequest struct {
	PolicyNumber       string         `json:"policy_number"`
	RegistrationNumber string         `json:"registration_number"`
	ChassisNumber      string         `json:"chassis_number,omitempty"`
	CompanyCode        string         `json:"company_code,omitempty"`
	AgentCode          string         `json:"agent_code,omitempty"`
	OfficeCode         string         `json:"office_code,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// BatchIssuanceRequest body para POST /api/certificates/batch.
type BatchIssuanceRequest struct {
	Items []CreateIssuanceRequest `json:"items"`
}

// StatusChangeRequest body opcional de cancel/suspend/resume.
type StatusChangeRequest struct {
	Reason string `json:"reason,omitempty"`
}

// IssuanceResponse solicitud de emisión en respuestas.
type IssuanceResponse struct {
	ID                 string          `json:"id"`
	ReferenceNumber    string          `json:"reference_number"`
	IssuerReference    string          `json:"issuer_reference,omitempty"`
	Status             string          `json:"status"`
	PolicyNumber       string          `json:"policy_number"`
	RegistrationNumber string          `json:"registration_number"`
	ChassisNumber      string          `json:"chassis_number,omitempty"`
	CompanyCode        string          `json:"company_code"`
	AgentCode          string          `json:"agent_code,omitempty"`
	OfficeCode         string          `json:"office_code,omitempty"`
	RetryCount         int             `json:"retry_count"`
	MaxRetries         int             `json:"max_retries"`
	Retryable          bool            `json:"retryable"`
	ErrorCode          string          `json:"error_code,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	ErrorDetail        []string        `json:"error_detail,omitempty"`
	CertificateNumber  string          `json:"certificate_number,omitempty"`
	CardNumber         string          `json:"card_number,omitempty"`
	TotalPremium       decimal.Decimal `json:"total_premium"`
	DownloadURL        string          `json:"download_url,omitempty"`
	DownloadExpiresAt  *time.Time      `json:"download_expires_at,omitempty"`
	DownloadCount      int             `json:"download_count"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	ProcessedAt        *time.Time      `json:"processed_at,omitempty"`
}

// ToIssuanceResponse proyecta la entidad (sin snapshot ni sobre: quedan internos).
func ToIssuanceResponse(r *entity.IssuanceRequest) IssuanceResponse {
	return IssuanceResponse{
		ID:                 r.ID,
		ReferenceNumber:    r.ReferenceNumber,
		IssuerReference:    r.IssuerReference,
		Status:             r.Status,
		PolicyNumber:       r.PolicyNumber,
		RegistrationNumber: r.RegistrationNumber,
		ChassisNumber:      r.ChassisNumber,
		CompanyCode:        r.CompanyCode,
		AgentCode:          r.AgentCode,
		OfficeCode:         r.OfficeCode,
		RetryCount:         r.RetryCount,
		MaxRetries:         r.MaxRetries,
		Retryable:          r.Retryable,
		ErrorCode:          r.ErrorCode,
		ErrorMessage:       r.ErrorMessage,
		ErrorDetail:        r.ErrorDetail,
		CertificateNumber:  r.CertificateNumber,
		CardNumber:         r.CardNumber,
		TotalPremium:       r.TotalPremium,
		DownloadURL:        r.DownloadURL,
		DownloadExpiresAt:  r.DownloadExpiresAt,
		DownloadCount:      r.DownloadCount,
		Metadata:           r.Metadata,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		ProcessedAt:        r.ProcessedAt,
	}
}

// IssuanceListResponse listado paginado.
type IssuanceListResponse struct {
	Items []IssuanceResponse `json:"items"`
	Page  PageResponse       `json:"page"`
}

// BatchItemResponse resultado de un elemento del lote: Request o Error, nunca ambos.
type BatchItemResponse struct {
	Index   int               `json:"index"`
	Request *IssuanceResponse `json:"request,omitempty"`
	Error   *ErrorResponse    `json:"error,omitempty"`
}

// BatchIssuanceResponse resultado del lote en el orden de entrada.
type BatchIssuanceResponse struct {
	BatchID   string              `json:"batch_id"`
	Items     []BatchItemResponse `json:"items"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// DownloadResponse enlaces vigentes de un certificado emitido.
type DownloadResponse struct {
	ReferenceNumber   string     `json:"reference_number"`
	CertificateNumber string     `json:"certificate_number"`
	DownloadURL       string     `json:"download_url"`
	ImageURL          string     `json:"image_url,omitempty"`
	QRCodeURL         string     `json:"qrcode_url,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	DownloadCount     int        `json:"download_count"`
}

// PolicySearchResponse página del Registry.
type PolicySearchResponse struct {
	Items []entity.RegistryPolicy `json:"items"`
	Page  PageResponse            `json:"page"`
}

// PolicyCheckResponse póliza más las reglas de emisión que incumple.
type PolicyCheckResponse struct {
	Policy   *entity.RegistryPolicy `json:"policy"`
	Eligible bool                   `json:"eligible"`
	Errors   []string               `json:"errors,omitempty"`
}
