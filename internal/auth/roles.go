package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-guard/internal/domain"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// Action names an operation guarded by a role capability.
type Action string

const (
	ActionCreateTicket           Action = "ticket.create"
	ActionAcceptTicket           Action = "ticket.accept"
	ActionAcceptEscalated        Action = "ticket.accept_escalated"
	ActionReassignTicket         Action = "ticket.reassign"
	ActionEscalateTicket         Action = "ticket.escalate"
	ActionEscalateAnyTicket      Action = "ticket.escalate_any"
	ActionUpdateProgress         Action = "ticket.update_progress"
	ActionResolveTicket          Action = "ticket.resolve"
	ActionResolveAnyTicket       Action = "ticket.resolve_any"
	ActionViewAllTickets         Action = "ticket.view_all"
	ActionViewEscalated          Action = "ticket.view_escalated"
	ActionWriteInternalComment   Action = "comment.write_internal"
	ActionReadInternalComments   Action = "comment.read_internal"
	ActionManageSLA              Action = "sla.manage"
	ActionViewTechnicianWorkload Action = "analytics.workload"
)

var capabilities = map[Action][]domain.Role{
	ActionCreateTicket:           {domain.RoleManager, domain.RoleSeniorTechnician, domain.RoleTechnician, domain.RoleUser},
	ActionAcceptTicket:           {domain.RoleTechnician, domain.RoleSeniorTechnician},
	ActionAcceptEscalated:        {domain.RoleSeniorTechnician},
	ActionReassignTicket:         {domain.RoleManager},
	ActionEscalateTicket:         {domain.RoleManager, domain.RoleSeniorTechnician, domain.RoleTechnician},
	ActionEscalateAnyTicket:      {domain.RoleManager},
	ActionUpdateProgress:         {domain.RoleTechnician, domain.RoleSeniorTechnician},
	ActionResolveTicket:          {domain.RoleManager, domain.RoleSeniorTechnician, domain.RoleTechnician},
	ActionResolveAnyTicket:       {domain.RoleManager},
	ActionViewAllTickets:         {domain.RoleManager},
	ActionViewEscalated:          {domain.RoleManager, domain.RoleSeniorTechnician},
	ActionWriteInternalComment:   {domain.RoleManager},
	ActionReadInternalComments:   {domain.RoleManager},
	ActionManageSLA:              {domain.RoleManager},
	ActionViewTechnicianWorkload: {domain.RoleManager},
}

// Can reports whether role holds the capability for action.
func Can(role domain.Role, action Action) bool {
	for _, allowed := range capabilities[action] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Require returns a Forbidden error when role lacks action.
func Require(role domain.Role, action Action) error {
	if Can(role, action) {
		return nil
	}
	return apperrors.NewDomainError(apperrors.CodeForbidden, "insufficient role", fiber.StatusForbidden, map[string]any{
		"role":   role,
		"action": action,
	})
}

// RequireCapability ensures the authenticated principal may perform action.
func RequireCapability(action Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if err := Require(principal.User.Role, action); err != nil {
			return err
		}
		return c.Next()
	}
}
