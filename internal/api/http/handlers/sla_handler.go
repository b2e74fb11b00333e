package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-guard/internal/api/dto"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/service"
)

// SLAHandler exposes the SLA limits.
type SLAHandler struct {
	service *service.SLAService
}

// NewSLAHandler constructs handler.
func NewSLAHandler(slaService *service.SLAService) *SLAHandler {
	return &SLAHandler{service: slaService}
}

// Config GET /sla/config.
func (h *SLAHandler) Config(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.service.Config()})
}

// SetLimit PUT /sla/config/:priority.
func (h *SLAHandler) SetLimit(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.SLALimitRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	priority := domain.TicketPriority(strings.ToUpper(c.Params("priority")))
	limits, err := h.service.SetLimit(c.UserContext(), actor, priority, req.LimitHours)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": limits})
}
