package auth

import (
	"errors"
	"net/http"

	"github.com/shovel-house/shovel-api/internal/config"
	"go.uber.org/zap"
)

type Authenticator interface {
	Authenticator(next http.Handler) http.Handler
}

func NewAuthenticator(authConfig config.Auth) (*JWTAuthenticator, error) {
	if authConfig.Secret == "" {
		return nil, errors.New("auth secret is required")
	}
	zap.S().Named("auth").Infof("authentication: hs256 issuer '%s'", authConfig.Issuer)
	return NewJWTAuthenticator([]byte(authConfig.Secret), authConfig.Issuer, authConfig.TokenLifetime), nil
}
