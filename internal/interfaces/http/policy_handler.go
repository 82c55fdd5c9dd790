package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/application/dto"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/certificate"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/jwt"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

// PolicyService consultas al Registry expuestas por HTTP.
type PolicyService interface {
	SearchPolicies(ctx context.Context, criteria entity.RegistrySearchCriteria) (*dto.PolicySearchResponse, error)
	CheckPolicy(ctx context.Context, policyNumber string, cc certificate.CrossCheck) (*dto.PolicyCheckResponse, error)
}

// PolicyHandler consulta de pólizas antes de solicitar la emisión.
type PolicyHandler struct {
	svc PolicyService
	log *logger.Logger
}

func NewPolicyHandler(svc PolicyService, log *logger.Logger) *PolicyHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PolicyHandler{svc: svc, log: log.Named("http")}
}

// Search godoc
// @Summary      Buscar pólizas en el Registry
// @Tags         policies
// @Security     Bearer
// @Produce      json
// @Param        policy_number        query  string  false  "Número de póliza"
// @Param        registration_number  query  string  false  "Matrícula"
// @Param        chassis_number       query  string  false  "Chasis"
// @Param        office_code          query  string  false  "Oficina"
// @Param        limit                query  int     false  "Tamaño de página"
// @Param        offset               query  int     false  "Desplazamiento"
// @Success      200  {object}  dto.PolicySearchResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/policies [get]
func (h *PolicyHandler) Search(c *fiber.Ctx) error {
	page := dto.PageRequest{Limit: c.QueryInt("limit", 0), Offset: c.QueryInt("offset", 0)}
	page.DefaultPage()

	criteria := entity.RegistrySearchCriteria{
		PolicyNumber:       strings.TrimSpace(c.Query("policy_number")),
		RegistrationNumber: strings.TrimSpace(c.Query("registration_number")),
		ChassisNumber:      strings.TrimSpace(c.Query("chassis_number")),
		OfficeCode:         strings.TrimSpace(c.Query("office_code")),
		Limit:              page.Limit,
		Offset:             page.Offset,
	}
	if GetRole(c) == jwt.RoleAgent {
		criteria.OrganizationCode = GetCompanyCode(c)
	}
	out, err := h.svc.SearchPolicies(c.UserContext(), criteria)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(out)
}

// Check godoc
// @Summary      Verificar si una póliza es apta para emitir
// @Description  Devuelve la póliza y la lista completa de reglas que incumple.
// @Tags         policies
// @Security     Bearer
// @Produce      json
// @Param        number               path   string  true   "Número de póliza"
// @Param        registration_number  query  string  false  "Matrícula a contrastar"
// @Param        chassis_number       query  string  false  "Chasis a contrastar"
// @Success      200  {object}  dto.PolicyCheckResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/policies/{number} [get]
func (h *PolicyHandler) Check(c *fiber.Ctx) error {
	number := strings.TrimSpace(c.Params("number"))
	if number == "" {
		return badRequest(c, "INVALID_POLICY_NUMBER", "número de póliza requerido")
	}
	cc := certificate.CrossCheck{
		RegistrationNumber: strings.TrimSpace(c.Query("registration_number")),
		ChassisNumber:      strings.TrimSpace(c.Query("chassis_number")),
	}
	out, err := h.svc.CheckPolicy(c.UserContext(), number, cc)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(out)
}
