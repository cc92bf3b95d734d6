package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func installConsumptionsCmd(app *App) {
	consumptionsCmd := &cobra.Command{
		Use:   "consumptions [uuid]",
		Short: "Dump the raw consumption data of a consumption unit",
		Long: `Dump the consumption data of a consumption unit as served by the API.

Without an argument the active consumption unit of the account is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running consumptions command")

			var unitUUID string
			if len(args) > 0 {
				unitUUID = args[0]
			}
			return app.consumptionsRun(cmd, unitUUID)
		},
	}

	app.cmd.AddCommand(consumptionsCmd)
}

func (a *App) consumptionsRun(cmd *cobra.Command, unitUUID string) error {
	client, err := a.newClient(cmd.Context())
	if err != nil {
		return err
	}

	cons, err := client.Consumptions(cmd.Context(), unitUUID)
	if err != nil {
		return err
	}
	a.saveSession(client)

	out, err := json.MarshalIndent(cons, "", "  ")
	if err != nil {
		return fmt.Errorf("could not format consumptions: %v", err)
	}
	fmt.Println(string(out))
	return nil
}
