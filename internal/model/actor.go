package model

import (
	"github.com/google/uuid"
)

// Lab roles recognized for verification.
const (
	RoleTechnician  = "lab_technician"
	RoleLabManager  = "lab_manager"
	RolePathologist = "pathologist"
)

// ActorContext is the already-validated identity performing an operation.
// It is passed explicitly into every service call rather than read from
// ambient request state.
type ActorContext struct {
	UserID uuid.UUID
	Roles  []string
}

func (a ActorContext) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanVerifyResults reports whether the actor holds a role allowed to move a
// result from preliminary to final.
func (a ActorContext) CanVerifyResults() bool {
	return a.HasRole(RoleTechnician) || a.HasRole(RoleLabManager) || a.HasRole(RolePathologist)
}
