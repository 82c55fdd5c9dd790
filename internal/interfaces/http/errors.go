package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/application/dto"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

// retryAfterSeconds sugerencia al cliente cuando una dependencia no responde.
const retryAfterSeconds = "30"

// statusForKind código HTTP de cada clase de error del dominio.
func statusForKind(kind string) int {
	switch kind {
	case domain.KindValidation, domain.KindIssuerRejected:
		return fiber.StatusUnprocessableEntity
	case domain.KindConflict:
		return fiber.StatusConflict
	case domain.KindDependencyUnavailable:
		return fiber.StatusServiceUnavailable
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindInvalidInput:
		return fiber.StatusBadRequest
	case domain.KindUnauthorized:
		return fiber.StatusUnauthorized
	case domain.KindForbidden:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError traduce err a dto.ErrorResponse. Los errores internos no exponen el detalle.
func respondError(c *fiber.Ctx, log *logger.Logger, err error) error {
	kind := domain.Kind(err)
	status := statusForKind(kind)

	body := dto.ErrorResponse{Code: kind, Message: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Details = verr.Errors
	}
	switch status {
	case fiber.StatusInternalServerError:
		log.Error().Err(err).Str("path", c.Path()).Msg("error interno")
		body.Message = "error interno del servidor"
	case fiber.StatusServiceUnavailable:
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: code, Message: message})
}
