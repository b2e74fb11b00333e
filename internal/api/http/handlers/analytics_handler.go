package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-guard/internal/service"
)

// AnalyticsHandler serves dashboard aggregates.
type AnalyticsHandler struct {
	service *service.AnalyticsService
}

// NewAnalyticsHandler constructs handler.
func NewAnalyticsHandler(analyticsService *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: analyticsService}
}

// Overview GET /analytics/overview.
func (h *AnalyticsHandler) Overview(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	overview, err := h.service.Overview(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": overview})
}

// RiskDistribution GET /analytics/risk-distribution.
func (h *AnalyticsHandler) RiskDistribution(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	dist, err := h.service.RiskDistribution(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dist})
}

// TechnicianWorkload GET /analytics/technician-workload.
func (h *AnalyticsHandler) TechnicianWorkload(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	rows, err := h.service.TechnicianWorkload(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}
