package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	errMissingToken   = stderrors.New("no token provided")
	errMissingSubject = stderrors.New("token has no subject")
	errInactiveUser   = stderrors.New("user is inactive")
)

// Claims accepts the user id under the names older clients still send.
type Claims struct {
	UserID    string `json:"user_id,omitempty"`
	UserIDAlt string `json:"userId,omitempty"`
	ID        string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) subject() string {
	for _, candidate := range []string{c.UserID, c.UserIDAlt, c.ID, c.Subject} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	expiry time.Duration
}

func NewJWTVerifier(secret string, expiry time.Duration) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		expiry: expiry,
	}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", err
	}

	subject := claims.subject()
	if subject == "" {
		return "", errMissingSubject
	}
	return subject, nil
}

// Issue signs a token for userID. Used by the dev token endpoint and tests.
func (v *JWTVerifier) Issue(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
