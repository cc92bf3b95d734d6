package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecotrend/go-ecotrend-ista/internal/credentials"
)

func installCredentialsCmd(app *App) {
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Store account credentials for later use",
		Long: `Store the account credentials given via the email and password flags in the
credentials file, so they do not have to be repeated on every invocation.

The profile flag selects which profile to write. Without it the default
profile is used.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if app.config.Email == "" {
				app.cmd.SilenceUsage = false
				return fmt.Errorf("the email flag is required to store credentials")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running credentials command")
			return app.credentialsRun()
		},
	}

	credentialsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the stored credential profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := credentials.Profiles(app.credentialsFile())
			if err != nil {
				return err
			}
			for _, profile := range profiles {
				fmt.Println(profile)
			}
			return nil
		},
	})

	app.cmd.AddCommand(credentialsCmd)
}

func (a *App) credentialsRun() error {
	if err := os.MkdirAll(a.config.ConfigDir, 0700); err != nil {
		return fmt.Errorf("could not create configuration directory: %v", err)
	}

	creds := credentials.Credentials{Email: a.config.Email, Password: a.config.Password}
	if err := credentials.Save(a.credentialsFile(), a.config.Profile, creds); err != nil {
		return err
	}

	fmt.Printf("Credentials stored in %s\n", a.credentialsFile())
	return nil
}
