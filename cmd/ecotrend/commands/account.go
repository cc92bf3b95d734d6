package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func installAccountCmd(app *App) {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Show the account profile",
		Long:  "Show the profile of the logged-in account, including its support code and consumption units.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running account command")
			return app.accountRun(cmd)
		},
	}

	app.cmd.AddCommand(accountCmd)
}

func (a *App) accountRun(cmd *cobra.Command) error {
	client, err := a.newClient(cmd.Context())
	if err != nil {
		return err
	}

	acc, err := client.Account(cmd.Context())
	if err != nil {
		return err
	}
	a.saveSession(client)

	out, err := json.MarshalIndent(acc, "", "  ")
	if err != nil {
		return fmt.Errorf("could not format account: %v", err)
	}
	fmt.Println(string(out))
	return nil
}
