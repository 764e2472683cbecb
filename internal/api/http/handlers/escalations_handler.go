package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/service"
)

// EscalationsHandler exposes the batch sweep to the external scheduler.
type EscalationsHandler struct {
	escalations *service.EscalationService
	metrics     *observability.Metrics
}

// NewEscalationsHandler constructs handler.
func NewEscalationsHandler(escalations *service.EscalationService, metrics *observability.Metrics) *EscalationsHandler {
	return &EscalationsHandler{escalations: escalations, metrics: metrics}
}

// ProcessPending POST /escalations/process. Always 200 with a
// partial-success summary; per-ticket failures are counted, not fatal.
func (h *EscalationsHandler) ProcessPending(c *fiber.Ctx) error {
	result, err := h.escalations.ProcessPending(c.Context())
	if err != nil {
		return err
	}
	h.metrics.RecordSweep(result.Escalated, result.Errors)
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		Escalated: result.Escalated,
		Errors:    result.Errors,
	}})
}
