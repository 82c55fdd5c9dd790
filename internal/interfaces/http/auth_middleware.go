package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/application/dto"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/application/issuance"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/jwt"
)

// Locals keys de la identidad del token en Fiber.
const (
	LocalAgentCode   = "agent_code"
	LocalCompanyCode = "company_code"
	LocalRole        = "role"
)

// AuthMiddleware valida el Bearer Token JWT y deja la identidad en c.Locals.
// Las operaciones que origina la petición quedan auditadas con el agent_code del token.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "Authorization header requerido"})
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "formato: Bearer <token>"})
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "token vacío"})
		}
		id, err := jwt.Parse(jwtSecret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "token inválido o expirado"})
		}
		c.Locals(LocalAgentCode, id.AgentCode)
		c.Locals(LocalCompanyCode, id.CompanyCode)
		c.Locals(LocalRole, id.Role)
		c.SetUserContext(issuance.WithActor(c.UserContext(), id.AgentCode))
		return c.Next()
	}
}

// RequireRole permite el paso solo a los roles indicados. Va después de AuthMiddleware.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *fiber.Ctx) error {
		role := GetRole(c)
		if role == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_ROLE", Message: "el token no incluye rol"})
		}
		if !allowed[role] {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "el rol '" + role + "' no tiene acceso a esta operación"})
		}
		return c.Next()
	}
}

func localString(c *fiber.Ctx, key string) string {
	s, _ := c.Locals(key).(string)
	return s
}

// GetAgentCode agent_code del token.
func GetAgentCode(c *fiber.Ctx) string { return localString(c, LocalAgentCode) }

// GetCompanyCode company_code del token.
func GetCompanyCode(c *fiber.Ctx) string { return localString(c, LocalCompanyCode) }

// GetRole rol del token.
func GetRole(c *fiber.Ctx) string { return localString(c, LocalRole) }

// crossCompany los agentes solo ven y operan solicitudes de su compañía.
func crossCompany(c *fiber.Ctx, companyCode string) bool {
	return GetRole(c) == jwt.RoleAgent && companyCode != "" && companyCode != GetCompanyCode(c)
}
