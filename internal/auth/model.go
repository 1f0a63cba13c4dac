package auth

import (
	"context"
	"slices"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"go.uber.org/zap"
)

type tokenKeyType struct{}

var (
	tokenKey tokenKeyType
)

// User is the caller identity carried by a bearer token.
type User struct {
	ID    uuid.UUID
	Name  string
	Role  model.Role
	Token *jwt.Token
}

func (u User) HasRole(roles ...model.Role) bool {
	return slices.Contains(roles, u.Role)
}

func UserFromContext(ctx context.Context) (User, bool) {
	val := ctx.Value(tokenKey)
	if val == nil {
		return User{}, false
	}
	user, ok := val.(User)
	return user, ok
}

func MustHaveUser(ctx context.Context) User {
	user, found := UserFromContext(ctx)
	if !found {
		zap.S().Named("auth").Panic("failed to find user in context")
	}
	return user
}

func NewUserContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, tokenKey, u)
}
