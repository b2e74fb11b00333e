package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-guard/internal/api/dto"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/service"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// TicketActionsHandler exposes the lifecycle transitions.
type TicketActionsHandler struct {
	service *service.TicketService
}

// NewTicketActionsHandler constructs handler.
func NewTicketActionsHandler(ticketService *service.TicketService) *TicketActionsHandler {
	return &TicketActionsHandler{service: ticketService}
}

// Accept POST /tickets/:id/accept.
func (h *TicketActionsHandler) Accept(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}
	view, err := h.service.Accept(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(view)})
}

// Reassign POST /tickets/:id/reassign.
func (h *TicketActionsHandler) Reassign(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}
	var req dto.ReassignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.AssigneeID <= 0 {
		return apperrors.NewValidationError("assignee_id required", nil)
	}
	view, err := h.service.Reassign(c.UserContext(), actor, id, req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(view)})
}

// Escalate POST /tickets/:id/escalate. The body is optional.
func (h *TicketActionsHandler) Escalate(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}
	var req dto.EscalateRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	view, err := h.service.Escalate(c.UserContext(), actor, id, req.SeniorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(view)})
}

// Progress POST /tickets/:id/progress.
func (h *TicketActionsHandler) Progress(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}
	var req dto.ProgressRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	view, err := h.service.UpdateProgress(c.UserContext(), actor, id, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(view)})
}

// Resolve POST /tickets/:id/resolve.
func (h *TicketActionsHandler) Resolve(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}
	view, err := h.service.Resolve(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(view)})
}

func (h *TicketActionsHandler) target(c *fiber.Ctx) (actor domain.Actor, id int64, err error) {
	actor, err = actorFrom(c)
	if err != nil {
		return actor, 0, err
	}
	id, err = idParam(c, "id")
	return actor, id, err
}
