package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"github.com/shovel-house/shovel-api/pkg/metrics"
	"go.uber.org/zap"
)

const defaultTokenLifetime = 72 * time.Hour

type Claims struct {
	UserID string     `json:"userId"`
	Name   string     `json:"name"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthenticator issues and verifies HS256 bearer tokens.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
	now      func() time.Time
}

// Make sure we conform to Authenticator interface
var _ Authenticator = (*JWTAuthenticator)(nil)

func NewJWTAuthenticator(secret []byte, issuer string, lifetime time.Duration) *JWTAuthenticator {
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	return &JWTAuthenticator{secret: secret, issuer: issuer, lifetime: lifetime, now: time.Now}
}

// Issue signs a token for the user. Role changes only show up in a token
// issued after the change.
func (a *JWTAuthenticator) Issue(userID uuid.UUID, name string, role model.Role) (string, error) {
	now := a.now()
	claims := Claims{
		UserID: userID.String(),
		Name:   name,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (a *JWTAuthenticator) Authenticate(token string) (User, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)

	var claims Claims
	t, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return User{}, fmt.Errorf("failed to authenticate token: %w", err)
	}
	if !t.Valid {
		return User{}, errors.New("failed to parse or validate token")
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return User{}, fmt.Errorf("invalid user id in token: %w", err)
	}
	switch claims.Role {
	case model.RoleAdmin, model.RoleShoveller, model.RoleHouseOwner:
	default:
		return User{}, fmt.Errorf("invalid role in token: %q", claims.Role)
	}

	return User{ID: id, Name: claims.Name, Role: claims.Role, Token: t}, nil
}

func (a *JWTAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := r.Header.Get("Authorization")
		if !strings.HasPrefix(accessToken, "Bearer ") {
			http.Error(w, "No token provided", http.StatusUnauthorized)
			return
		}

		user, err := a.Authenticate(strings.TrimPrefix(accessToken, "Bearer "))
		if err != nil {
			zap.S().Named("auth").Debugw("authentication failed", "error", err)
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		metrics.UniqueUsersPerWeek.Observe(user.ID.String())

		ctx := NewUserContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles rejects callers whose role is not in the allow-list.
func RequireRoles(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, found := UserFromContext(r.Context())
			if !found {
				http.Error(w, "No token provided", http.StatusUnauthorized)
				return
			}
			if !user.HasRole(roles...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
