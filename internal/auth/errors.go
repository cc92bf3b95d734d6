package auth

import (
	"errors"
	"fmt"
)

// ErrNoCredentials is returned when re-authentication is needed but no login
// credentials were retained.
var ErrNoCredentials = errors.New("no login credentials available")

// ErrDecode is returned when an API response body is not the expected JSON.
var ErrDecode = errors.New("could not decode response")

// AuthError is returned for failures of the OpenID Connect provider.
type AuthError struct {
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// Unauthorized reports whether the provider rejected the request with a 401.
func (e *AuthError) Unauthorized() bool {
	return e.StatusCode == 401
}

func authErrorf(format string, args ...any) *AuthError {
	return &AuthError{Message: fmt.Sprintf(format, args...)}
}
