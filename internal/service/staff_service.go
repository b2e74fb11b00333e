package service

import (
	"context"

	"github.com/spec-kit/sla-guard/internal/auth"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/repository"
	apperrors "github.com/spec-kit/sla-guard/pkg/util/errorutil"
)

// StaffService lists support staff for assignment pickers.
type StaffService struct {
	users repository.UserRepository
}

// NewStaffService constructs the service.
func NewStaffService(users repository.UserRepository) *StaffService {
	return &StaffService{users: users}
}

// List returns staff accounts of the given roles, all staff roles when none
// are given. Managers may list anyone; technicians only technicians.
func (s *StaffService) List(ctx context.Context, actor domain.Actor, roles ...domain.Role) ([]domain.User, error) {
	if actor.System {
		return nil, apperrors.NewForbidden("system actor cannot list staff")
	}
	if len(roles) == 0 {
		roles = []domain.Role{domain.RoleManager, domain.RoleSeniorTechnician, domain.RoleTechnician}
	}
	for _, role := range roles {
		if !role.Valid() {
			return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": role})
		}
		if role == domain.RoleTechnician || role == domain.RoleSeniorTechnician {
			if actor.Role.IsTechnician() {
				continue
			}
		}
		if err := auth.Require(actor.Role, auth.ActionReassignTicket); err != nil {
			return nil, err
		}
	}
	return s.users.ListByRole(ctx, roles...)
}
