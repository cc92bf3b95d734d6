// Package constants is responsible for defining the constants used across the application.
// It also provides utility functions to get the default configuration and cache paths.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "ecotrend"

	// RecorderCmdName is the name of the recorder daemon binary.
	RecorderCmdName = "ecotrend-recorder"

	// Version is the version of the module.
	Version = "0.1.0"

	// DefaultAppFolder is the name of the default root folder for config and cache files.
	DefaultAppFolder = "ecotrend"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// APIBaseURL is the base URL of the ista EcoTrend API.
	APIBaseURL = "https://api.prod.eed.ista.com/"

	// ProviderURL is the base URL of the ista Keycloak OpenID Connect provider.
	ProviderURL = "https://keycloak.ista.com/realms/eed-prod/protocol/openid-connect/"

	// ClientID is the OpenID Connect client id the EcoTrend portal uses.
	ClientID = "ecotrend"

	// RedirectURI is the redirect URI registered for the client.
	RedirectURI = "https://ecotrend.ista.de/login-redirect"

	// PostLogoutRedirectURI is the redirect URI used after a logout.
	PostLogoutRedirectURI = "https://ecotrend.ista.de"

	// Scope is the OpenID Connect scope requested during login.
	Scope = "openid"

	// DemoAccount is the email address of the publicly available demo account.
	DemoAccount = "demo@ista.de"

	// TokenCacheFolder is the folder inside the cache path storing session tokens.
	TokenCacheFolder = "sessions"

	// CredentialsFileName is the base name of the optional credentials file.
	CredentialsFileName = "credentials.ini"
)

type options struct {
	baseDir func() (string, error)
}

type option func(*options)

// GetDefaultConfigPath is the default path to the configuration directory.
func GetDefaultConfigPath(opts ...option) string {
	o := options{baseDir: os.UserConfigDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// GetDefaultCachePath is the default path to the cache directory.
func GetDefaultCachePath(opts ...option) string {
	o := options{baseDir: os.UserCacheDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// getBaseDir is a helper function to handle the case where the baseDir function returns an error, and instead return an empty string.
func getBaseDir(baseDirFunc func() (string, error)) string {
	dir, err := baseDirFunc()
	if err != nil {
		return ""
	}
	return dir
}
