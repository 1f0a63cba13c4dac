package service

import (
	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/store/model"
)

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role model.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

// owns reports whether the actor may act as the job's house owner.
func (a Actor) owns(job *model.Job) bool {
	return a.IsAdmin() || (a.Role == model.RoleHouseOwner && a.ID == job.OwnerID)
}

// TokenIssuer signs bearer tokens for a user.
type TokenIssuer interface {
	Issue(userID uuid.UUID, name string, role model.Role) (string, error)
}
