package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// RequestError is returned when an authenticated API request fails with a
// non-2xx status code.
type RequestError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("unexpected status code: %s", e.Status)
}

// Get performs an authenticated GET request and decodes the JSON response into v.
func (a *Authenticator) Get(ctx context.Context, url string, params url.Values, v any) error {
	return a.Do(ctx, http.MethodGet, url, params, v)
}

// Do performs an authenticated request, making sure a valid access token is
// used. A single retry is attempted when the API rejects the token, in case
// it was revoked server side before its expiry.
func (a *Authenticator) Do(ctx context.Context, method, rawURL string, params url.Values, v any) error {
	if err := a.EnsureValidToken(ctx); err != nil {
		return err
	}

	resp, err := a.doAuthorized(ctx, method, rawURL, params)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		a.log.Debug("Access token rejected, attempting to refresh or re-authenticate")
		a.invalidateAccessToken()

		if err := a.EnsureValidToken(ctx); err != nil {
			return err
		}
		if resp, err = a.doAuthorized(ctx, method, rawURL, params); err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			_ = resp.Body.Close()
			return &AuthError{Message: "unauthorized access, re-authentication failed", StatusCode: resp.StatusCode}
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return &RequestError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func (a *Authenticator) doAuthorized(ctx context.Context, method, rawURL string, params url.Values) (*http.Response, error) {
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.AccessToken())

	return a.http.Do(req)
}
