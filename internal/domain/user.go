package domain

import "time"

// Role is the closed set of actor roles.
type Role string

const (
	RoleManager          Role = "MANAGER"
	RoleSeniorTechnician Role = "SENIOR_TECHNICIAN"
	RoleTechnician       Role = "TECHNICIAN"
	RoleUser             Role = "USER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleSeniorTechnician, RoleTechnician, RoleUser:
		return true
	}
	return false
}

// IsTechnician reports whether r works tickets.
func (r Role) IsTechnician() bool {
	return r == RoleTechnician || r == RoleSeniorTechnician
}

// User is an account of any role.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Actor identifies who triggers an operation. System actors carry no user id.
type Actor struct {
	UserID int64
	Role   Role
	System bool
}

// SystemActor is used by the escalation sweep.
func SystemActor() Actor {
	return Actor{System: true}
}

// UserActor builds an actor for an authenticated user.
func UserActor(user *User) Actor {
	return Actor{UserID: user.ID, Role: user.Role}
}

// ActorRef returns the user id to record in logs, nil for the system.
func (a Actor) ActorRef() *int64 {
	if a.System {
		return nil
	}
	id := a.UserID
	return &id
}
