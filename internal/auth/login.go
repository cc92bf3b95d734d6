package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Login authenticates with username and password, and an optional OTP code.
// On success the authenticator holds a valid access and refresh token.
//
// The credentials are retained for transparent re-authentication once the
// refresh token expires.
func (a *Authenticator) Login(ctx context.Context, username, password, otp string) error {
	a.mu.Lock()
	a.username = username
	a.password = password
	a.mu.Unlock()

	verifier, challenge, err := newVerifier()
	if err != nil {
		return err
	}

	loginForm, err := a.fetchLoginForm(ctx, challenge)
	if err != nil {
		return err
	}

	redirect, err := a.submitCredentials(ctx, loginForm, username, password, otp)
	if err != nil {
		return err
	}

	code, err := authorizationCode(redirect)
	if err != nil {
		return err
	}

	return a.exchangeCode(ctx, code, verifier)
}

// fetchLoginForm requests the hosted login page and extracts the credential form.
func (a *Authenticator) fetchLoginForm(ctx context.Context, challenge string) (*form, error) {
	authURL := a.oauthConfig().AuthCodeURL("",
		authParam("response_mode", "fragment"),
		authParam("code_challenge", challenge),
		authParam("code_challenge_method", "S256"),
	)

	resp, err := a.get(ctx, authURL)
	if err != nil {
		return nil, authErrorf("failed to retrieve authentication page: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Message: "failed to retrieve authentication page", StatusCode: resp.StatusCode}
	}

	f, err := parseForm(resp.Body, resp.Request.URL)
	if err != nil {
		return nil, err
	}
	if f.ID != loginFormID {
		return nil, authErrorf("unexpected form %q on authentication page", f.ID)
	}
	return f, nil
}

// submitCredentials posts the login form and walks the remaining flow steps
// until the provider redirects back with an authorization code.
func (a *Authenticator) submitCredentials(ctx context.Context, f *form, username, password, otp string) (redirect string, err error) {
	if f.HasField("username") {
		f.Fields.Set("username", username)
	}
	if f.HasField("password") {
		f.Fields.Set("password", password)
	}

	resp, err := a.postForm(ctx, f.Action, f.Fields)
	if err != nil {
		return "", authErrorf("failed to submit login credentials: %v", err)
	}
	defer resp.Body.Close()

	if location := redirectLocation(resp); location != "" {
		return location, nil
	}

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Message: "failed to submit login credentials", StatusCode: resp.StatusCode}
	}

	next, err := parseForm(resp.Body, resp.Request.URL)
	if err != nil {
		return "", err
	}

	switch {
	case next.ID == otpFormID:
		return a.submitOTP(ctx, next, otp)

	case next.HasField("username"):
		// The same login page again: the credentials were rejected.
		return "", authErrorf("failed to login, please verify your login credentials")

	case next.HasField("password"):
		// Two-step flow, the username was accepted and the password is
		// requested on a separate page.
		return a.submitCredentials(ctx, next, username, password, otp)
	}

	return "", authErrorf("unexpected form %q after submitting credentials", next.ID)
}

// submitOTP posts the one-time password form.
func (a *Authenticator) submitOTP(ctx context.Context, f *form, otp string) (redirect string, err error) {
	if otp == "" && a.otpCallback != nil {
		if otp, err = a.otpCallback(); err != nil {
			return "", authErrorf("OTP callback failed: %v", err)
		}
	}
	if otp == "" {
		return "", authErrorf("OTP code is required but not provided")
	}

	f.Fields.Set("otp", otp)

	resp, err := a.postForm(ctx, f.Action, f.Fields)
	if err != nil {
		return "", authErrorf("failed to submit OTP: %v", err)
	}
	defer resp.Body.Close()

	if location := redirectLocation(resp); location != "" {
		return location, nil
	}

	return "", &AuthError{Message: "OTP was invalid", StatusCode: resp.StatusCode}
}

// Logout invalidates the session with the provider and drops all tokens.
func (a *Authenticator) Logout(ctx context.Context) error {
	a.mu.Lock()
	idToken := a.session.IDToken
	a.mu.Unlock()

	params := url.Values{"client_id": {a.clientID}}
	if a.postLogoutRedirectURI != "" {
		params.Set("post_logout_redirect_uri", a.postLogoutRedirectURI)
	}
	if idToken != "" {
		params.Set("id_token_hint", idToken)
	}

	resp, err := a.get(ctx, a.providerURL+"logout?"+params.Encode())
	if err != nil {
		return authErrorf("failed to logout: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
		return &AuthError{Message: "failed to logout", StatusCode: resp.StatusCode}
	}

	a.mu.Lock()
	a.session = Session{}
	a.mu.Unlock()
	return nil
}

// reauthenticate retries a full login with the retained credentials.
func (a *Authenticator) reauthenticate(ctx context.Context) error {
	a.mu.Lock()
	username, password, demo := a.username, a.password, a.session.Demo
	a.mu.Unlock()

	if demo {
		return a.DemoLogin(ctx)
	}
	if username == "" || password == "" {
		return ErrNoCredentials
	}

	var err error
	for attempt := 1; attempt <= a.maxLoginAttempts; attempt++ {
		if err = a.Login(ctx, username, password, ""); err == nil {
			return nil
		}
		a.log.Debug("Re-authentication attempt failed", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.retryDelay):
		}
	}
	return fmt.Errorf("re-authentication failed after %d attempts: %w", a.maxLoginAttempts, err)
}

// redirectLocation returns the Location header of a redirect response, or "".
func redirectLocation(resp *http.Response) string {
	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusSeeOther {
		return ""
	}
	return resp.Header.Get("Location")
}

func (a *Authenticator) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent())
	return a.http.Do(req)
}

func (a *Authenticator) postForm(ctx context.Context, url string, data url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.http.Do(req)
}
