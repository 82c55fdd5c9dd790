package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

// HeaderRequestID se propaga en la respuesta y en el log de acceso.
const HeaderRequestID = "X-Request-ID"

// RequestLogger asigna un request id (si el cliente no envía uno) y registra cada petición.
//
// Nivel del log:
//   - 5xx → error
//   - 4xx → warn
//   - resto → info
func RequestLogger(log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("access")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		reqID := c.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(HeaderRequestID, reqID)

		err := c.Next()
		if err != nil {
			// el error handler de Fiber escribe la respuesta; aquí solo interesa el código final
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		ev := log.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			ev = log.Error().Err(err)
		case status >= fiber.StatusBadRequest:
			ev = log.Warn()
		}
		ev.Str("request_id", reqID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("agent_code", GetAgentCode(c)).
			Msg("petición HTTP")
		return nil
	}
}
