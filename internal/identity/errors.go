package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned when the provider has no such user or profile row.
var ErrNotFound = errors.New("identity: not found")

// AuthError is a rejection reported by the provider: bad credentials,
// expired links, revoked tokens. Message is the provider's own text.
type AuthError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Op == "" {
		return "identity: " + msg
	}
	return fmt.Sprintf("identity: %s: %s", e.Op, msg)
}

// InvalidCredentials reports whether the provider rejected a password grant.
func (e *AuthError) InvalidCredentials() bool {
	return e != nil && (e.Code == "invalid_grant" || e.Code == "invalid_credentials")
}

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
