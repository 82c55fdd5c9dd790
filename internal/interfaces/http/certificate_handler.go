package http

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/application/dto"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/application/issuance"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/jwt"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

// HeaderIdempotencyKey cabecera obligatoria en las altas.
const HeaderIdempotencyKey = "Idempotency-Key"

// IssuanceService lo que los handlers usan del orquestador.
type IssuanceService interface {
	Create(ctx context.Context, key string, cmd issuance.CreateCommand) (*dto.IssuanceResponse, bool, error)
	BulkCreate(ctx context.Context, key string, cmds []issuance.CreateCommand) (*dto.BatchIssuanceResponse, bool, error)
	Get(ctx context.Context, id string) (*dto.IssuanceResponse, error)
	List(ctx context.Context, filter entity.IssuanceFilter) (*dto.IssuanceListResponse, error)
	Cancel(ctx context.Context, id, reason string) (*dto.IssuanceResponse, error)
	Suspend(ctx context.Context, id, reason string) (*dto.IssuanceResponse, error)
	Resume(ctx context.Context, id, reason string) (*dto.IssuanceResponse, error)
	Retry(ctx context.Context, id string) (*dto.IssuanceResponse, error)
	RefreshStatus(ctx context.Context, id string) (*dto.IssuanceResponse, error)
	Download(ctx context.Context, id string) (*dto.DownloadResponse, error)
	Summary(ctx context.Context, id string) ([]byte, string, error)
}

// CertificateHandler maneja las solicitudes de emisión de certificados (protegido).
type CertificateHandler struct {
	svc IssuanceService
	log *logger.Logger
}

// NewCertificateHandler construye el handler.
func NewCertificateHandler(svc IssuanceService, log *logger.Logger) *CertificateHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CertificateHandler{svc: svc, log: log.Named("http")}
}

// Create godoc
// @Summary      Solicitar la emisión de un certificado
// @Description  Ejecuta el pipeline completo (Registry, validación, traducción, Issuer).
// @Description  Una solicitud que termina FAILED se devuelve con su error_code y el código HTTP de ese error.
// @Tags         certificates
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                        true  "Clave de idempotencia"
// @Param        body             body    dto.CreateIssuanceRequest     true  "Datos de la solicitud"
// @Success      201  {object}  dto.IssuanceResponse
// @Success      200  {object}  dto.IssuanceResponse  "Repetición de una clave ya completada"
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.IssuanceResponse
// @Failure      503  {object}  dto.IssuanceResponse
// @Router       /api/certificates [post]
func (h *CertificateHandler) Create(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Get(HeaderIdempotencyKey))
	if key == "" {
		return badRequest(c, "MISSING_IDEMPOTENCY_KEY", "la cabecera Idempotency-Key es obligatoria")
	}
	var in dto.CreateIssuanceRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	cmd, ok := h.command(c, in)
	if !ok {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: domain.KindForbidden, Message: "company_code distinto al del token"})
	}

	out, replayed, err := h.svc.Create(c.UserContext(), key, cmd)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(issuanceStatus(out, replayed)).JSON(out)
}

// CreateBatch godoc
// @Summary      Emisión en lote
// @Description  Cada elemento se procesa de forma independiente con la clave derivada "<clave>:<índice>".
// @Tags         certificates
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                    true  "Clave de idempotencia del lote"
// @Param        body             body    dto.BatchIssuanceRequest  true  "Elementos del lote (máx. 100)"
// @Success      201  {object}  dto.BatchIssuanceResponse
// @Success      200  {object}  dto.BatchIssuanceResponse  "Repetición"
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/certificates/batch [post]
func (h *CertificateHandler) CreateBatch(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Get(HeaderIdempotencyKey))
	if key == "" {
		return badRequest(c, "MISSING_IDEMPOTENCY_KEY", "la cabecera Idempotency-Key es obligatoria")
	}
	var in dto.BatchIssuanceRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	cmds := make([]issuance.CreateCommand, 0, len(in.Items))
	for i, item := range in.Items {
		cmd, ok := h.command(c, item)
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Code: domain.KindForbidden, Message: fmt.Sprintf("elemento %d: company_code distinto al del token", i),
			})
		}
		cmds = append(cmds, cmd)
	}

	out, replayed, err := h.svc.BulkCreate(c.UserContext(), key, cmds)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if replayed {
		return c.JSON(out)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// List godoc
// @Summary      Listar solicitudes de emisión
// @Tags         certificates
// @Security     Bearer
// @Produce      json
// @Param        status         query  string  false  "Estado"
// @Param        policy_number  query  string  false  "Número de póliza"
// @Param        company_code   query  string  false  "Compañía (solo operadores)"
// @Param        limit          query  int     false  "Tamaño de página (máx. 100)"
// @Param        offset         query  int     false  "Desplazamiento"
// @Success      200  {object}  dto.IssuanceListResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Router       /api/certificates [get]
func (h *CertificateHandler) List(c *fiber.Ctx) error {
	filter := entity.IssuanceFilter{
		Status:       strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		PolicyNumber: strings.TrimSpace(c.Query("policy_number")),
		CompanyCode:  strings.TrimSpace(c.Query("company_code")),
		Limit:        c.QueryInt("limit", 0),
		Offset:       c.QueryInt("offset", 0),
	}
	if GetRole(c) == jwt.RoleAgent {
		filter.CompanyCode = GetCompanyCode(c)
	}
	out, err := h.svc.List(c.UserContext(), filter)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(out)
}

// Get godoc
// @Summary      Obtener una solicitud por id o número de referencia
// @Tags         certificates
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID o referencia CRT-…"
// @Success      200  {object}  dto.IssuanceResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/certificates/{id} [get]
func (h *CertificateHandler) Get(c *fiber.Ctx) error {
	out, err := h.owned(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(out)
}

// Cancel godoc
// @Summary      Anular una solicitud
// @Tags         certificates
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                   true   "ID o referencia"
// @Param        body  body  dto.StatusChangeRequest  false  "Motivo"
// @Success      200  {object}  dto.IssuanceResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/certificates/{id}/cancel [post]
func (h *CertificateHandler) Cancel(c *fiber.Ctx) error {
	return h.changeStatus(c, h.svc.Cancel)
}

// Suspend godoc
// @Summary      Suspender una solicitud
// @Tags         certificates
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                   true   "ID o referencia"
// @Param        body  body  dto.StatusChangeRequest  false  "Motivo"
// @Success      200  {object}  dto.IssuanceResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/certificates/{id}/suspend [post]
func (h *CertificateHandler) Suspend(c *fiber.Ctx) error {
	return h.changeStatus(c, h.svc.Suspend)
}

// Resume godoc
// @Summary      Reanudar una solicitud suspendida
// @Tags         certificates
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                   true   "ID o referencia"
// @Param        body  body  dto.StatusChangeRequest  false  "Motivo"
// @Success      200  {object}  dto.IssuanceResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/certificates/{id}/resume [post]
func (h *CertificateHandler) Resume(c *fiber.Ctx) error {
	return h.changeStatus(c, h.svc.Resume)
}

// Retry godoc
// @Summary      Reintentar una solicitud FAILED reintentable
// @Tags         certificates
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID o referencia"
// @Success      200  {object}  dto.IssuanceResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/certificates/{id}/retry [post]
func (h *CertificateHandler) Retry(c *fiber.Ctx) error {
	return h.act(c, h.svc.Retry)
}

// Refresh godoc
// @Summary      Consultar al Issuer el estado de una solicitud en proceso
// @Tags         certificates
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID o referencia"
// @Success      200  {object}  dto.IssuanceResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/certificates/{id}/refresh [post]
func (h *CertificateHandler) Refresh(c *fiber.Ctx) error {
	return h.act(c, h.svc.RefreshStatus)
}

// Download godoc
// @Summary      Enlaces de descarga del certificado emitido
// @Tags         certificates
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID o referencia"
// @Success      200  {object}  dto.DownloadResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/certificates/{id}/download [get]
func (h *CertificateHandler) Download(c *fiber.Ctx) error {
	cur, err := h.owned(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out, err := h.svc.Download(c.UserContext(), cur.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(out)
}

// Summary godoc
// @Summary      Resumen PDF de la solicitud
// @Tags         certificates
// @Security     Bearer
// @Produce      application/pdf
// @Param        id   path  string  true  "ID o referencia"
// @Success      200  {file}    binary
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/certificates/{id}/summary.pdf [get]
func (h *CertificateHandler) Summary(c *fiber.Ctx) error {
	cur, err := h.owned(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	pdf, filename, err := h.svc.Summary(c.UserContext(), cur.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s"`, filename))
	return c.Send(pdf)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// command completa compañía y agente desde el token. ok = false si un agente pide otra compañía.
func (h *CertificateHandler) command(c *fiber.Ctx, in dto.CreateIssuanceRequest) (issuance.CreateCommand, bool) {
	cmd := issuance.CreateCommand{
		PolicyNumber:       in.PolicyNumber,
		RegistrationNumber: in.RegistrationNumber,
		ChassisNumber:      in.ChassisNumber,
		CompanyCode:        strings.TrimSpace(in.CompanyCode),
		AgentCode:          strings.TrimSpace(in.AgentCode),
		OfficeCode:         in.OfficeCode,
		Metadata:           in.Metadata,
	}
	if crossCompany(c, cmd.CompanyCode) {
		return cmd, false
	}
	if cmd.CompanyCode == "" {
		cmd.CompanyCode = GetCompanyCode(c)
	}
	if cmd.AgentCode == "" || GetRole(c) == jwt.RoleAgent {
		cmd.AgentCode = GetAgentCode(c)
	}
	return cmd, true
}

// owned carga la solicitud del path y oculta las de otra compañía a los agentes.
func (h *CertificateHandler) owned(c *fiber.Ctx) (*dto.IssuanceResponse, error) {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return nil, fmt.Errorf("%w: id requerido", domain.ErrInvalidInput)
	}
	out, err := h.svc.Get(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if crossCompany(c, out.CompanyCode) {
		return nil, fmt.Errorf("%w: solicitud %s", domain.ErrNotFound, id)
	}
	return out, nil
}

func (h *CertificateHandler) act(c *fiber.Ctx, op func(ctx context.Context, id string) (*dto.IssuanceResponse, error)) error {
	cur, err := h.owned(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out, err := op(c.UserContext(), cur.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(out)
}

func (h *CertificateHandler) changeStatus(c *fiber.Ctx, op func(ctx context.Context, id, reason string) (*dto.IssuanceResponse, error)) error {
	var in dto.StatusChangeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "INVALID_BODY", "cuerpo inválido")
		}
	}
	cur, err := h.owned(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out, err := op(c.UserContext(), cur.ID, strings.TrimSpace(in.Reason))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(out)
}

// issuanceStatus 201 en un alta nueva y 200 en una repetición; una solicitud FAILED lleva
// el código de su error tanto la primera vez como al repetirse.
func issuanceStatus(out *dto.IssuanceResponse, replayed bool) int {
	if out.Status == entity.StatusFailed && out.ErrorCode != "" {
		return statusForKind(out.ErrorCode)
	}
	if replayed {
		return fiber.StatusOK
	}
	return fiber.StatusCreated
}
