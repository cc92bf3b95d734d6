// Package daemon provides the recorder daemon storing EcoTrend readings in
// PostgreSQL.
package daemon

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	ecotrend "github.com/ecotrend/go-ecotrend-ista"
	"github.com/ecotrend/go-ecotrend-ista/internal/cli"
	"github.com/ecotrend/go-ecotrend-ista/internal/constants"
	"github.com/ecotrend/go-ecotrend-ista/internal/recorder"
	"github.com/ecotrend/go-ecotrend-ista/internal/recorder/database"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *recorder.Service

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int

	Email    string
	Password string

	DBconfig   database.Config
	ConfigPath string

	MigrationsDir string
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.RecorderCmdName,
		Short:         "EcoTrend readings recorder",
		Long:          "The recorder periodically fetches the meter readings of your ista EcoTrend account and stores them in a PostgreSQL database.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.RecorderCmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to decode configuration into struct: %w", err)
			}

			cli.SetVerbosity(a.config.Verbosity) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	installMigrateCmd(&a)
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

	// Account flags
	cmd.PersistentFlags().StringVarP(&app.config.Email, "email", "e", "", "email address of the EcoTrend account")
	cmd.PersistentFlags().StringVar(&app.config.Password, "password", "", "password of the EcoTrend account")

	// Daemon flags
	cmd.Flags().StringVarP(&app.config.ConfigPath, "daemon-config", "c", "", "path to the recorder configuration file")

	addDBFlags(cmd, &app.config.DBconfig)

	if err := cmd.MarkFlagFilename("daemon-config", "json"); err != nil {
		panic(fmt.Sprintf("failed to mark daemon-config flag as filename: %v", err))
	}
}

func addDBFlags(cmd *cobra.Command, config *database.Config) {
	cmd.PersistentFlags().StringVar(&config.Host, "db-host", "", "database host")
	cmd.PersistentFlags().IntVarP(&config.Port, "db-port", "p", 5432, "database port")
	cmd.PersistentFlags().StringVarP(&config.User, "db-user", "u", "", "database user")
	cmd.PersistentFlags().StringVarP(&config.Password, "db-password", "P", "", "database password")
	cmd.PersistentFlags().StringVarP(&config.DBName, "db-name", "n", "", "database name")
	cmd.PersistentFlags().StringVarP(&config.SSLMode, "db-sslmode", "s", "", "database SSL mode")
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns a copy of the root command for tests.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) installVersion() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Returns the version of the daemon and exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s\t%s\n", constants.RecorderCmdName, constants.Version)
			return nil
		},
	}
	a.cmd.AddCommand(cmd)
}

func (a *App) run() (err error) {
	if a.config.Email == "" {
		return fmt.Errorf("an account email is required, use the email flag or the %s_EMAIL environment variable",
			"ECOTREND_RECORDER")
	}
	if a.config.ConfigPath == "" {
		return fmt.Errorf("a recorder configuration file is required, use the daemon-config flag")
	}

	a.config.ConfigPath, err = filepath.Abs(a.config.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for config file: %v", err)
	}

	cm := recorder.NewConfigManager(a.config.ConfigPath, slog.Default())
	client := ecotrend.New(a.config.Email, a.config.Password, ecotrend.WithLogger(slog.Default()))

	daemon, err := recorder.New(cm, client, a.config.DBconfig)
	if err != nil {
		return err
	}
	a.daemon = daemon
	close(a.ready)

	return a.daemon.Run()
}
