// Package commands contains the commands of the ecotrend command line tool.
package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	ecotrend "github.com/ecotrend/go-ecotrend-ista"
	"github.com/ecotrend/go-ecotrend-ista/internal/cli"
	"github.com/ecotrend/go-ecotrend-ista/internal/constants"
	"github.com/ecotrend/go-ecotrend-ista/internal/credentials"
	"github.com/ecotrend/go-ecotrend-ista/internal/tokencache"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	// email of the account selected during credential resolution.
	email string
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int

	Email    string
	Password string
	Profile  string
	OTP      string

	ConfigDir string
	CacheDir  string
	NoCache   bool
}

// New registers the commands and returns a new App.
func New() (*App, error) {
	a := App{}

	a.cmd = &cobra.Command{
		Use:   constants.CmdName,
		Short: "Access your ista EcoTrend consumption data",
		Long: `Access your ista EcoTrend consumption data from the command line.

Readings, costs and CO2 emissions of your consumption units are fetched from
the EcoTrend API. Use the demo@ista.de account to try it out without an ista
contract.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to decode configuration into struct: %w", err)
			}

			cli.SetVerbosity(a.config.Verbosity) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	installAccountCmd(&a)
	installUnitsCmd(&a)
	installConsumptionsCmd(&a)
	installReadingsCmd(&a)
	installCredentialsCmd(&a)
	installLogoutCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().StringVarP(&app.config.Email, "email", "e", "", "email address of the EcoTrend account")
	cmd.PersistentFlags().StringVarP(&app.config.Password, "password", "p", "", "password of the EcoTrend account")
	cmd.PersistentFlags().StringVar(&app.config.Profile, "profile", "", "profile of the credentials file to use")
	cmd.PersistentFlags().StringVar(&app.config.ConfigDir, "config-dir", constants.GetDefaultConfigPath(), "directory of the credentials file")
	cmd.PersistentFlags().StringVar(&app.config.CacheDir, "cache-dir", constants.GetDefaultCachePath(), "directory to cache session tokens in")
	cmd.PersistentFlags().BoolVar(&app.config.NoCache, "no-cache", false, "do not cache session tokens")
	cmd.PersistentFlags().StringVar(&app.config.OTP, "otp", "", "one-time password for accounts with two-factor authentication")

	if err := cmd.MarkPersistentFlagDirname("config-dir"); err != nil {
		panic(fmt.Sprintf("failed to mark config-dir flag as directory: %v", err))
	}
	if err := cmd.MarkPersistentFlagDirname("cache-dir"); err != nil {
		panic(fmt.Sprintf("failed to mark cache-dir flag as directory: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns a copy of the root command for tests.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) installVersion() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Returns the version of the client and exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s\t%s\n", constants.CmdName, constants.Version)
			return nil
		},
	}
	a.cmd.AddCommand(cmd)
}

// resolveCredentials returns the account login, trying in order the flags and
// environment, then the credentials file and finally an interactive prompt
// for the email address.
func (a *App) resolveCredentials() (credentials.Credentials, error) {
	if a.config.Email != "" {
		return credentials.Credentials{Email: a.config.Email, Password: a.config.Password}, nil
	}

	creds, err := credentials.Load(a.credentialsFile(), a.config.Profile)
	if err == nil {
		return creds, nil
	}
	if !errors.Is(err, credentials.ErrNotFound) {
		return credentials.Credentials{}, err
	}

	return credentials.Credentials{}, fmt.Errorf("no account selected: use the email flag or store credentials with %q", constants.CmdName+" credentials")
}

func (a *App) credentialsFile() string {
	return filepath.Join(a.config.ConfigDir, constants.CredentialsFileName)
}

// newClient returns a logged-in client for the selected account. A cached
// session is restored when available so most invocations skip the login flow.
func (a *App) newClient(ctx context.Context) (*ecotrend.Client, error) {
	creds, err := a.resolveCredentials()
	if err != nil {
		return nil, err
	}
	a.email = creds.Email

	opts := []ecotrend.Options{
		ecotrend.WithLogger(slog.Default()),
		ecotrend.WithOTPCallback(a.askOTP),
	}
	client := ecotrend.New(creds.Email, creds.Password, opts...)

	cache := tokencache.New(filepath.Join(a.config.CacheDir, constants.TokenCacheFolder))
	if !a.config.NoCache {
		if session, err := cache.Load(creds.Email); err == nil {
			slog.Debug("Restored cached session", "email", creds.Email)
			client.SetSession(session)
			return client, nil
		} else if !errors.Is(err, tokencache.ErrNotFound) {
			slog.Warn("Ignoring unreadable session cache", "error", err)
		}
	}

	if err := client.LoginOTP(ctx, a.config.OTP); err != nil {
		return nil, err
	}

	if !a.config.NoCache {
		if err := cache.Store(creds.Email, client.Session()); err != nil {
			slog.Warn("Could not cache session", "error", err)
		}
	}
	return client, nil
}

// saveSession persists the possibly refreshed session after a command ran.
func (a *App) saveSession(client *ecotrend.Client) {
	if a.config.NoCache || a.email == "" {
		return
	}
	cache := tokencache.New(filepath.Join(a.config.CacheDir, constants.TokenCacheFolder))
	if err := cache.Store(a.email, client.Session()); err != nil {
		slog.Warn("Could not cache session", "error", err)
	}
}

// askOTP prompts for a one-time password on the terminal.
func (a *App) askOTP() (string, error) {
	if a.config.OTP != "" {
		return a.config.OTP, nil
	}

	fmt.Fprint(os.Stderr, "One-time password: ")
	reader := bufio.NewReader(os.Stdin)
	otp, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("could not read one-time password: %v", err)
	}
	return strings.TrimSpace(otp), nil
}
