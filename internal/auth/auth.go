// Package auth implements the Keycloak OpenID Connect login flow used by the
// ista EcoTrend portal.
//
// The provider has no API-friendly grant for end users, so the authenticator
// drives the browser flow directly: it requests the hosted login page, submits
// the credential form (and the OTP form, if served), extracts the
// authorization code from the redirect fragment and exchanges it for tokens
// using PKCE.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"runtime"
	"sync"
	"time"

	"github.com/ecotrend/go-ecotrend-ista/internal/constants"
)

// Session holds the token state of an authenticated session.
type Session struct {
	AccessToken   string    `toml:"access_token"`
	AccessExpiry  time.Time `toml:"access_expiry"`
	RefreshToken  string    `toml:"refresh_token"`
	RefreshExpiry time.Time `toml:"refresh_expiry"`
	IDToken       string    `toml:"id_token,omitempty"`
	Demo          bool      `toml:"demo"`
}

// Authenticator drives the Keycloak login flow and keeps the session tokens fresh.
type Authenticator struct {
	providerURL           string
	apiBaseURL            string
	clientID              string
	redirectURI           string
	postLogoutRedirectURI string
	scope                 string

	maxLoginAttempts int
	retryDelay       time.Duration

	http        *http.Client
	log         *slog.Logger
	otpCallback func() (string, error)
	now         func() time.Time

	mu       sync.Mutex
	username string
	password string
	session  Session
}

type options struct {
	httpClient  *http.Client
	logger      *slog.Logger
	providerURL string
	apiBaseURL  string
	otpCallback func() (string, error)
	timeout     time.Duration
	now         func() time.Time
}

// Options represents an optional function to override Authenticator default values.
type Options func(*options)

// WithHTTPClient overrides the HTTP client used for all requests.
// A cookie jar is installed if the client has none, the login flow needs one.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// WithProviderURL overrides the OpenID Connect provider base URL.
func WithProviderURL(u string) Options {
	return func(o *options) {
		o.providerURL = u
	}
}

// WithAPIBaseURL overrides the EcoTrend API base URL used for demo tokens.
func WithAPIBaseURL(u string) Options {
	return func(o *options) {
		o.apiBaseURL = u
	}
}

// WithOTPCallback registers a callback which is invoked when the provider
// requests a one-time password and none was supplied.
func WithOTPCallback(cb func() (string, error)) Options {
	return func(o *options) {
		o.otpCallback = cb
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Options {
	return func(o *options) {
		o.timeout = d
	}
}

// WithTimeProvider overrides the clock. Tests only.
func WithTimeProvider(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}

// New returns a new Authenticator.
func New(args ...Options) *Authenticator {
	opts := options{
		logger:      slog.Default(),
		providerURL: constants.ProviderURL,
		apiBaseURL:  constants.APIBaseURL,
		timeout:     10 * time.Second,
		now:         time.Now,
	}
	for _, opt := range args {
		opt(&opts)
	}

	client := opts.httpClient
	if client == nil {
		client = &http.Client{Timeout: opts.timeout}
	}
	if client.Jar == nil {
		// Ignoring the error: cookiejar.New never fails with nil options.
		jar, _ := cookiejar.New(nil)
		client.Jar = jar
	}
	if client.CheckRedirect == nil {
		// The login flow reads authorization codes out of redirect Locations,
		// they must not be followed.
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Authenticator{
		providerURL:           opts.providerURL,
		apiBaseURL:            opts.apiBaseURL,
		clientID:              constants.ClientID,
		redirectURI:           constants.RedirectURI,
		postLogoutRedirectURI: constants.PostLogoutRedirectURI,
		scope:                 constants.Scope,
		maxLoginAttempts:      3,
		retryDelay:            time.Second,
		http:                  client,
		log:                   opts.logger,
		otpCallback:           opts.otpCallback,
		now:                   opts.now,
	}
}

// AccessToken returns the current access token, or "" if it has expired.
func (a *Authenticator) AccessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.session.AccessExpiry.IsZero() && a.now().After(a.session.AccessExpiry) {
		a.session.AccessToken = ""
	}
	return a.session.AccessToken
}

// RefreshToken returns the current refresh token, or "" if it has expired.
func (a *Authenticator) RefreshToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.session.RefreshExpiry.IsZero() && a.now().After(a.session.RefreshExpiry) {
		a.session.RefreshToken = ""
	}
	return a.session.RefreshToken
}

// Session returns a copy of the current session tokens.
func (a *Authenticator) Session() Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// SetSession seeds the authenticator with previously persisted session tokens.
func (a *Authenticator) SetSession(s Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = s
}

func (a *Authenticator) invalidateAccessToken() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session.AccessToken = ""
	a.session.AccessExpiry = time.Time{}
}

func (a *Authenticator) invalidateRefreshToken() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session.RefreshToken = ""
	a.session.RefreshExpiry = time.Time{}
}

// newVerifier returns a fresh PKCE code verifier and its S256 challenge.
func newVerifier() (verifier, challenge string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("could not generate code verifier: %v", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

// userAgent identifies the module on every request.
func userAgent() string {
	return fmt.Sprintf("go-ecotrend-ista/%s (%s %s) %s", constants.Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}
