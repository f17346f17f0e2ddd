package auth

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/PaulBabatuyi/inboxd/internal/apperr"
)

// Authenticator binds a connection attempt to a user identity. It is called
// exactly once per connection, before the connection is registered anywhere.
type Authenticator struct {
	tokens *JWTManager
	log    logrus.FieldLogger
}

func NewAuthenticator(tokens *JWTManager, log logrus.FieldLogger) *Authenticator {
	return &Authenticator{tokens: tokens, log: log}
}

// Authenticate verifies a bearer credential ("Bearer <jwt>" or the bare
// token) and returns the user id it was issued for.
func (a *Authenticator) Authenticate(credential string) (string, error) {
	token := strings.TrimSpace(credential)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", apperr.Unauthenticated("missing bearer token")
	}

	claims, err := a.tokens.VerifyToken(token)
	if err != nil {
		a.log.WithError(err).Debug("rejected connection credential")
		return "", apperr.Wrap(apperr.CodeUnauthenticated, "invalid token", err)
	}
	return claims.UserID, nil
}
