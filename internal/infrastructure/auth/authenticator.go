package auth

import (
	"context"
	"net/http"
	"strings"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
)

// TokenVerifier checks a credential's signature and expiry and returns the
// user id it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Authenticator resolves a session credential to a user exactly once per
// connection. Every failure is reported as the same AuthenticationError; the
// wrapped cause is for the logs only.
type Authenticator struct {
	verifier TokenVerifier
	users    repository.UserRepository
}

func NewAuthenticator(verifier TokenVerifier, users repository.UserRepository) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		users:    users,
	}
}

func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*entity.User, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, errors.Authentication("Authentication failed", errMissingToken)
	}

	subject, err := a.verifier.Verify(ctx, credential)
	if err != nil {
		logger.Debug("Token verification failed: %v", err)
		return nil, errors.Authentication("Authentication failed", err)
	}

	user, err := a.users.GetByID(ctx, subject)
	if err != nil {
		logger.Debug("Token subject %s did not resolve: %v", subject, err)
		return nil, errors.Authentication("Authentication failed", err)
	}
	if !user.IsActive {
		return nil, errors.Authentication("Authentication failed", errInactiveUser)
	}
	return user, nil
}

const bearerProtocolPrefix = "bearer."

// CredentialFromRequest extracts the credential a client presents when
// opening a connection: the token query parameter, a Bearer Authorization
// header, or a "bearer.<token>" WebSocket subprotocol for browsers that
// cannot set headers.
func CredentialFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	for _, value := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, proto := range strings.Split(value, ",") {
			proto = strings.TrimSpace(proto)
			if strings.HasPrefix(proto, bearerProtocolPrefix) {
				return strings.TrimPrefix(proto, bearerProtocolPrefix)
			}
		}
	}
	return ""
}
