package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// authParam is a shorthand for oauth2.SetAuthURLParam.
func authParam(key, value string) oauth2.AuthCodeOption {
	return oauth2.SetAuthURLParam(key, value)
}

func (a *Authenticator) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    a.clientID,
		RedirectURL: a.redirectURI,
		Scopes:      []string{a.scope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.providerURL + "auth",
			TokenURL:  a.providerURL + "token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// oauthContext routes oauth2 token requests through the authenticator's HTTP client.
func (a *Authenticator) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.http)
}

// exchangeCode exchanges the authorization code for tokens.
func (a *Authenticator) exchangeCode(ctx context.Context, code, verifier string) error {
	tok, err := a.oauthConfig().Exchange(a.oauthContext(ctx), code, authParam("code_verifier", verifier))
	if err != nil {
		return wrapRetrieveError("failed to exchange code for tokens", err)
	}

	a.updateSession(tok, false)
	return nil
}

// Refresh obtains a new access token using the refresh token.
// A 401 from the provider invalidates the refresh token.
func (a *Authenticator) Refresh(ctx context.Context) error {
	refreshToken := a.RefreshToken()
	if refreshToken == "" {
		return authErrorf("no valid refresh token available")
	}

	a.mu.Lock()
	demo := a.session.Demo
	a.mu.Unlock()

	if demo {
		return a.refreshDemoToken(ctx, refreshToken)
	}

	src := a.oauthConfig().TokenSource(a.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil && rErr.Response.StatusCode == http.StatusUnauthorized {
			a.invalidateRefreshToken()
		}
		return wrapRetrieveError("failed to refresh access token", err)
	}

	a.updateSession(tok, false)
	return nil
}

// EnsureValidToken makes sure a valid access token is available, refreshing or
// re-authenticating as necessary.
func (a *Authenticator) EnsureValidToken(ctx context.Context) error {
	if a.AccessToken() != "" {
		return nil
	}

	if a.RefreshToken() == "" {
		return a.reauthenticate(ctx)
	}

	err := a.Refresh(ctx)
	var aErr *AuthError
	if errors.As(err, &aErr) && aErr.Unauthorized() {
		a.log.Warn("Refresh token rejected, attempting re-authentication")
		return a.reauthenticate(ctx)
	}
	return err
}

// updateSession stores the tokens of a successful token response.
func (a *Authenticator) updateSession(tok *oauth2.Token, demo bool) {
	s := Session{
		AccessToken:  tok.AccessToken,
		AccessExpiry: tok.Expiry,
		RefreshToken: tok.RefreshToken,
		Demo:         demo,
	}
	if v, ok := tok.Extra("refresh_expires_in").(float64); ok && v > 0 {
		s.RefreshExpiry = a.now().Add(time.Duration(v) * time.Second)
	}
	if v, ok := tok.Extra("id_token").(string); ok {
		s.IDToken = v
	}

	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
}

// demoTokenResponse is the camelCase token payload of the demo user endpoints.
type demoTokenResponse struct {
	AccessToken           string `json:"accessToken"`
	AccessTokenExpiresIn  int    `json:"accessTokenExpiresIn"`
	RefreshToken          string `json:"refreshToken"`
	RefreshTokenExpiresIn int    `json:"refreshTokenExpiresIn"`
}

// DemoLogin obtains tokens for the demo account. No credentials are involved,
// the API hands out a throwaway session.
func (a *Authenticator) DemoLogin(ctx context.Context) error {
	resp, err := a.get(ctx, a.apiBaseURL+"demo-user-token")
	if err != nil {
		return authErrorf("failed to retrieve demo user token: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &AuthError{Message: "failed to retrieve demo user token", StatusCode: resp.StatusCode}
	}

	return a.updateDemoSession(resp)
}

func (a *Authenticator) refreshDemoToken(ctx context.Context, refreshToken string) error {
	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return fmt.Errorf("could not marshal refresh token request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBaseURL+"demo-user-refresh-token", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent())
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return authErrorf("failed to refresh demo user token: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			a.invalidateRefreshToken()
		}
		return &AuthError{Message: "failed to refresh demo user token", StatusCode: resp.StatusCode}
	}

	return a.updateDemoSession(resp)
}

func (a *Authenticator) updateDemoSession(resp *http.Response) error {
	var tokens demoTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return authErrorf("invalid demo user token response: %v", err)
	}

	tok := &oauth2.Token{
		AccessToken:  tokens.AccessToken,
		Expiry:       a.now().Add(time.Duration(tokens.AccessTokenExpiresIn) * time.Second),
		RefreshToken: tokens.RefreshToken,
	}
	a.updateSession(tok.WithExtra(map[string]any{
		"refresh_expires_in": float64(tokens.RefreshTokenExpiresIn),
	}), true)
	return nil
}

// wrapRetrieveError converts oauth2 token endpoint failures into AuthErrors
// carrying the provider's status code and error description.
func wrapRetrieveError(msg string, err error) error {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return authErrorf("%s: %v", msg, err)
	}

	description := rErr.ErrorDescription
	if description == "" {
		description = string(rErr.Body)
	}
	statusCode := 0
	if rErr.Response != nil {
		statusCode = rErr.Response.StatusCode
	}
	return &AuthError{
		Message:    fmt.Sprintf("%s: %s", msg, description),
		StatusCode: statusCode,
	}
}
