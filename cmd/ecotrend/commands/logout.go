package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	ecotrend "github.com/ecotrend/go-ecotrend-ista"
	"github.com/ecotrend/go-ecotrend-ista/internal/constants"
	"github.com/ecotrend/go-ecotrend-ista/internal/tokencache"
)

func installLogoutCmd(app *App) {
	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "End the session and drop cached tokens",
		Long:  "End the session with ista and remove the cached session tokens of the account.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running logout command")
			return app.logoutRun(cmd)
		},
	}

	app.cmd.AddCommand(logoutCmd)
}

func (a *App) logoutRun(cmd *cobra.Command) error {
	creds, err := a.resolveCredentials()
	if err != nil {
		return err
	}

	cache := tokencache.New(filepath.Join(a.config.CacheDir, constants.TokenCacheFolder))
	session, err := cache.Load(creds.Email)
	if err != nil {
		if errors.Is(err, tokencache.ErrNotFound) {
			fmt.Println("No active session.")
			return nil
		}
		return err
	}

	client := ecotrend.New(creds.Email, creds.Password, ecotrend.WithLogger(slog.Default()))
	client.SetSession(session)
	if err := client.Logout(cmd.Context()); err != nil {
		slog.Warn("Could not end the session with ista, dropping it locally", "error", err)
	}

	if err := cache.Remove(creds.Email); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}
