package http

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthCheck comprueba una dependencia (PostgreSQL, Redis).
type HealthCheck func(ctx context.Context) error

// BreakerStates foto del estado de los circuit breakers.
type BreakerStates interface {
	States() map[string]string
}

// HealthHandler liveness y readiness.
type HealthHandler struct {
	service  string
	checks   map[string]HealthCheck
	breakers BreakerStates
	timeout  time.Duration
}

func NewHealthHandler(service string, checks map[string]HealthCheck, breakers BreakerStates) *HealthHandler {
	return &HealthHandler{service: service, checks: checks, breakers: breakers, timeout: 2 * time.Second}
}

// Live godoc
// @Summary  Liveness
// @Tags     health
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "service": h.service})
}

// Ready godoc
// @Summary      Readiness
// @Description  Falla (503) si alguna dependencia propia no responde. Un breaker abierto se informa pero no cambia el código.
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health/ready [get]
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", fiber.StatusOK
	results := make(fiber.Map, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			status, code = "degraded", fiber.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	body := fiber.Map{"status": status, "service": h.service, "checks": results}
	if h.breakers != nil {
		body["breakers"] = h.breakers.States()
	}
	return c.Status(code).JSON(body)
}
