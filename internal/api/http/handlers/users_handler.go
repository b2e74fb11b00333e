package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-guard/internal/api/dto"
	"github.com/spec-kit/sla-guard/internal/auth"
	"github.com/spec-kit/sla-guard/internal/domain"
	"github.com/spec-kit/sla-guard/internal/service"
)

// UsersHandler manages accounts: registration, login and staff lookups.
type UsersHandler struct {
	auth  *service.AuthService
	staff *service.StaffService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, staffService *service.StaffService) *UsersHandler {
	return &UsersHandler{auth: authService, staff: staffService}
}

// Register POST /auth/register. A manager's bearer token allows staff roles.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	var actor *domain.Actor
	if principal, ok := auth.PrincipalFromContext(c); ok {
		a := principal.Actor()
		actor = &a
	}
	session, err := h.auth.Register(c.UserContext(), actor, service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.Role(strings.ToUpper(string(req.Role))),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": authResponse(session)})
}

// Login POST /auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	session, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": authResponse(session)})
}

// Me GET /auth/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	user, err := h.auth.Me(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// ListStaff GET /staff?role=TECHNICIAN,SENIOR_TECHNICIAN.
func (h *UsersHandler) ListStaff(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var roles []domain.Role
	if raw := c.Query("role"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			roles = append(roles, domain.Role(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	users, err := h.staff.List(c.UserContext(), actor, roles...)
	if err != nil {
		return err
	}
	out := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, dto.NewUserResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

func authResponse(s *service.Session) dto.AuthResponse {
	return dto.AuthResponse{Token: s.Token, ExpiresAt: s.ExpiresAt, User: dto.NewUserResponse(s.User)}
}
