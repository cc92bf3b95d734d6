// Package ecotrend is a client for the ista EcoTrend API, which serves meter
// readings, costs and CO2 emissions for heating, hot water and water of
// ista-metered residences.
//
// Logging in drives the full Keycloak browser flow of ecotrend.ista.de,
// including optional one-time passwords and the demo account. Sessions can be
// exported and restored so tokens survive process restarts.
package ecotrend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecotrend/go-ecotrend-ista/internal/auth"
	"github.com/ecotrend/go-ecotrend-ista/internal/constants"
)

// Session holds the token state of an authenticated session, suitable for
// persisting between runs.
type Session struct {
	AccessToken   string    `toml:"access_token"`
	AccessExpiry  time.Time `toml:"access_expiry"`
	RefreshToken  string    `toml:"refresh_token"`
	RefreshExpiry time.Time `toml:"refresh_expiry"`
	IDToken       string    `toml:"id_token,omitempty"`
	Demo          bool      `toml:"demo"`
}

// Client is an authenticated EcoTrend API client. It is safe for concurrent
// use by multiple goroutines.
type Client struct {
	email    string
	password string
	auth     *auth.Authenticator

	apiBaseURL string
	log        *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	account *Account
}

type options struct {
	httpClient  *http.Client
	logger      *slog.Logger
	apiBaseURL  string
	providerURL string
	otpCallback func() (string, error)
	timeout     time.Duration
	now         func() time.Time
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithHTTPClient overrides the HTTP client used for all requests.
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

// WithAPIBaseURL overrides the EcoTrend API base URL.
func WithAPIBaseURL(u string) Options {
	return func(o *options) {
		o.apiBaseURL = u
	}
}

// WithProviderURL overrides the OpenID Connect provider base URL.
func WithProviderURL(u string) Options {
	return func(o *options) {
		o.providerURL = u
	}
}

// WithOTPCallback registers a callback invoked when the account has
// two-factor authentication enabled and a one-time password is needed.
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

// New returns a new client for the given account. No network requests are
// made until Login or a restored session is used.
func New(email, password string, args ...Options) *Client {
	opts := options{
		logger:     slog.Default(),
		apiBaseURL: constants.APIBaseURL,
		now:        time.Now,
	}
	for _, opt := range args {
		opt(&opts)
	}

	authOpts := []auth.Options{
		auth.WithLogger(opts.logger),
	}
	if opts.httpClient != nil {
		authOpts = append(authOpts, auth.WithHTTPClient(opts.httpClient))
	}
	if opts.apiBaseURL != "" {
		authOpts = append(authOpts, auth.WithAPIBaseURL(opts.apiBaseURL))
	}
	if opts.providerURL != "" {
		authOpts = append(authOpts, auth.WithProviderURL(opts.providerURL))
	}
	if opts.otpCallback != nil {
		authOpts = append(authOpts, auth.WithOTPCallback(opts.otpCallback))
	}
	if opts.timeout != 0 {
		authOpts = append(authOpts, auth.WithTimeout(opts.timeout))
	}
	if opts.now != nil {
		authOpts = append(authOpts, auth.WithTimeProvider(opts.now))
	}

	return &Client{
		email:      email,
		password:   password,
		auth:       auth.New(authOpts...),
		apiBaseURL: opts.apiBaseURL,
		log:        opts.logger,
		now:        opts.now,
	}
}

// Login authenticates against the provider and fetches the account profile.
// The demo account logs in without a password.
func (c *Client) Login(ctx context.Context) error {
	return c.LoginOTP(ctx, "")
}

// LoginOTP is Login with an explicit one-time password for accounts with
// two-factor authentication enabled.
func (c *Client) LoginOTP(ctx context.Context, otp string) error {
	if c.DemoMode() {
		if err := c.auth.DemoLogin(ctx); err != nil {
			return mapError(err)
		}
	} else if err := c.auth.Login(ctx, c.email, c.password, otp); err != nil {
		return mapError(err)
	}

	_, err := c.fetchAccount(ctx)
	return err
}

// Logout ends the session with the provider and drops the cached account.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.account = nil
	c.mu.Unlock()

	if err := c.auth.Logout(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// DemoMode reports whether the client is bound to the shared demo account.
func (c *Client) DemoMode() bool {
	return c.email == constants.DemoAccount
}

// Session returns the current token state for persisting.
func (c *Client) Session() Session {
	return Session(c.auth.Session())
}

// SetSession restores a previously exported session. The account profile is
// fetched lazily on the first request.
func (c *Client) SetSession(s Session) {
	c.auth.SetSession(auth.Session(s))
}

// Account returns the account information of the logged-in user. The profile
// is fetched once and cached for the lifetime of the client.
func (c *Client) Account(ctx context.Context) (Account, error) {
	c.mu.Lock()
	if c.account != nil {
		acc := *c.account
		c.mu.Unlock()
		return acc, nil
	}
	c.mu.Unlock()

	acc, err := c.fetchAccount(ctx)
	if err != nil {
		return Account{}, err
	}
	return *acc, nil
}

func (c *Client) fetchAccount(ctx context.Context) (*Account, error) {
	var acc Account
	if err := c.auth.Get(ctx, c.apiBaseURL+"account", nil, &acc); err != nil {
		return nil, mapError(err)
	}

	c.mu.Lock()
	c.account = &acc
	c.mu.Unlock()

	c.log.Debug("Fetched account", "email", acc.Email, "supportCode", acc.SupportCode)
	return &acc, nil
}

// UUIDs returns the consumption unit UUIDs of the account, taken from the
// resident to consumption unit map. Sorted, map order is not stable.
func (c *Client) UUIDs(ctx context.Context) ([]string, error) {
	acc, err := c.Account(ctx)
	if err != nil {
		return nil, err
	}

	uuids := make([]string, 0, len(acc.ResidentAndConsumptionUUIDsMap))
	for _, u := range acc.ResidentAndConsumptionUUIDsMap {
		uuids = append(uuids, u)
	}
	sort.Strings(uuids)
	return uuids, nil
}

// SupportCode returns the support code of the account.
func (c *Client) SupportCode(ctx context.Context) (string, error) {
	acc, err := c.Account(ctx)
	if err != nil {
		return "", err
	}
	return acc.SupportCode, nil
}

// Consumptions returns the consumption data of the given consumption unit.
// With an empty UUID the account's active consumption unit is used.
func (c *Client) Consumptions(ctx context.Context, unitUUID string) (*Consumptions, error) {
	if unitUUID == "" {
		acc, err := c.Account(ctx)
		if err != nil {
			return nil, err
		}
		unitUUID = acc.ActiveConsumptionUnit
	}
	if _, err := uuid.Parse(unitUUID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUUID, unitUUID)
	}

	params := url.Values{"consumptionUnitUuid": {unitUUID}}
	var cons Consumptions
	if err := c.auth.Get(ctx, c.apiBaseURL+"consumptions", params, &cons); err != nil {
		return nil, mapConsumptionsError(err, unitUUID)
	}
	return &cons, nil
}

// ConsumptionUnitDetails returns the consumption units of the account with
// their addresses and booked services.
func (c *Client) ConsumptionUnitDetails(ctx context.Context) (*ConsumptionUnitDetails, error) {
	var details ConsumptionUnitDetails
	if err := c.auth.Get(ctx, c.apiBaseURL+"menu", nil, &details); err != nil {
		return nil, mapError(err)
	}
	return &details, nil
}

// Readings returns the consumption data of the given unit flattened into one
// reading per type and month, keyed for stable downstream identification.
func (c *Client) Readings(ctx context.Context, unitUUID string) (FlatReadings, error) {
	acc, err := c.Account(ctx)
	if err != nil {
		return nil, err
	}

	cons, err := c.Consumptions(ctx, unitUUID)
	if err != nil {
		return nil, err
	}
	return cons.Flatten(acc.SupportCode), nil
}
