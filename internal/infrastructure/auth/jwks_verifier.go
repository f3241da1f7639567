package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"marketchat/pkg/logger"
)

// JWKSVerifier validates asymmetric tokens against a JSON Web Key Set, for
// deployments where an identity provider issues the session credential.
type JWKSVerifier struct {
	jwks *keyfunc.JWKS
}

func NewJWKSVerifier(jwks *keyfunc.JWKS) *JWKSVerifier {
	return &JWKSVerifier{jwks: jwks}
}

// NewRemoteJWKSVerifier fetches the key set from url and keeps refreshing it
// in the background until Close is called.
func NewRemoteJWKSVerifier(url string) (*JWKSVerifier, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Error("Failed to refresh JWKS from %s: %v", url, err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS: %w", err)
	}
	return &JWKSVerifier{jwks: jwks}, nil
}

func (v *JWKSVerifier) Verify(ctx context.Context, token string) (string, error) {
	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, v.jwks.Keyfunc); err != nil {
		return "", err
	}

	subject := claims.subject()
	if subject == "" {
		return "", errMissingSubject
	}
	return subject, nil
}

func (v *JWKSVerifier) Close() {
	v.jwks.EndBackground()
}
