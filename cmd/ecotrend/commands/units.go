package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	ecotrend "github.com/ecotrend/go-ecotrend-ista"
)

func installUnitsCmd(app *App) {
	var asJSON bool

	unitsCmd := &cobra.Command{
		Use:   "units",
		Short: "List the consumption units of the account",
		Long:  "List the consumption units of the account with their addresses and booked services.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running units command")
			return app.unitsRun(cmd, asJSON)
		},
	}
	unitsCmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	app.cmd.AddCommand(unitsCmd)
}

func (a *App) unitsRun(cmd *cobra.Command, asJSON bool) error {
	client, err := a.newClient(cmd.Context())
	if err != nil {
		return err
	}

	details, err := client.ConsumptionUnitDetails(cmd.Context())
	if err != nil {
		return err
	}
	a.saveSession(client)

	if asJSON {
		out, err := json.MarshalIndent(details.ConsumptionUnits, "", "  ")
		if err != nil {
			return fmt.Errorf("could not format consumption units: %v", err)
		}
		fmt.Println(string(out))
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "UUID\tADDRESS\tSERVICES")
	for _, unit := range details.ConsumptionUnits {
		fmt.Fprintf(w, "%s\t%s\t%s\n", unit.ID, formatAddress(unit.Address), formatServices(unit.Booked))
	}
	return w.Flush()
}

func formatAddress(addr ecotrend.ConsumptionUnitAddress) string {
	parts := []string{}
	if addr.Street != "" {
		parts = append(parts, strings.TrimSpace(addr.Street+" "+addr.HouseNumber))
	}
	if addr.City != "" {
		parts = append(parts, strings.TrimSpace(addr.PostalCode+" "+addr.City))
	}
	return strings.Join(parts, ", ")
}

func formatServices(booked ecotrend.BookedServices) string {
	var services []string
	if booked.Cost {
		services = append(services, "cost")
	}
	if booked.CO2 {
		services = append(services, "co2")
	}
	if len(services) == 0 {
		return "-"
	}
	return strings.Join(services, ",")
}
