package ecotrend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ecotrend/go-ecotrend-ista/internal/auth"
)

var (
	// ErrLogin is returned when authentication with the provider fails,
	// typically because of wrong credentials or an expired session that
	// could not be renewed.
	ErrLogin = errors.New("login failed")

	// ErrLoginRequired is returned when an operation needs an authenticated
	// session but Login was never called.
	ErrLoginRequired = errors.New("not logged in, login first")

	// ErrServer is returned when the API or the provider could not be
	// reached or answered with an unexpected status code.
	ErrServer = errors.New("server error")

	// ErrParse is returned when an API response could not be decoded.
	ErrParse = errors.New("could not parse response")

	// ErrInvalidUUID is returned when a consumption unit UUID is malformed
	// or unknown to the account.
	ErrInvalidUUID = errors.New("invalid consumption unit")
)

// mapError translates low level request failures into the package sentinels
// so callers can branch on errors.Is without reaching into the transport.
func mapError(err error) error {
	var aErr *auth.AuthError
	var rErr *auth.RequestError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.As(err, &aErr):
		return fmt.Errorf("%w: %v", ErrLogin, aErr)
	case errors.Is(err, auth.ErrNoCredentials):
		return fmt.Errorf("%w: %v", ErrLoginRequired, err)
	case errors.As(err, &rErr):
		return fmt.Errorf("%w: %v", ErrServer, rErr)
	case errors.Is(err, auth.ErrDecode):
		return fmt.Errorf("%w: %v", ErrParse, err)
	default:
		// Transport failures and timeouts.
		return fmt.Errorf("%w: %v", ErrServer, err)
	}
}

// mapConsumptionsError is mapError with the consumptions endpoint quirk: the
// API answers 400 when the consumption unit UUID is not one of the account's.
func mapConsumptionsError(err error, uuid string) error {
	var rErr *auth.RequestError
	if errors.As(err, &rErr) && rErr.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %s", ErrInvalidUUID, uuid)
	}
	return mapError(err)
}
