package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type readingsFilter struct {
	readingType string
	year        int
	month       int
	current     bool
	asJSON      bool
}

func installReadingsCmd(app *App) {
	var filter readingsFilter

	readingsCmd := &cobra.Command{
		Use:   "readings [uuid]",
		Short: "Show the meter readings of a consumption unit",
		Long: `Show the meter readings of a consumption unit, one row per type and month.

Without an argument the active consumption unit of the account is used. The
readings can be narrowed down by type, year and month, or to the most
recently completed month with the current flag.`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if filter.month != 0 && (filter.month < 1 || filter.month > 12) {
				app.cmd.SilenceUsage = false
				return fmt.Errorf("month must be between 1 and 12, got %d", filter.month)
			}
			if filter.current && (filter.year != 0 || filter.month != 0) {
				app.cmd.SilenceUsage = false
				return fmt.Errorf("the current flag cannot be combined with year or month")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running readings command")

			var unitUUID string
			if len(args) > 0 {
				unitUUID = args[0]
			}
			return app.readingsRun(cmd, unitUUID, filter)
		},
	}

	readingsCmd.Flags().StringVarP(&filter.readingType, "type", "t", "", "only readings of this type (heating, warmwater, water)")
	readingsCmd.Flags().IntVarP(&filter.year, "year", "y", 0, "only readings of this year")
	readingsCmd.Flags().IntVarP(&filter.month, "month", "m", 0, "only readings of this month")
	readingsCmd.Flags().BoolVar(&filter.current, "current", false, "only readings of the most recently completed month")
	readingsCmd.Flags().BoolVar(&filter.asJSON, "json", false, "output as JSON")

	app.cmd.AddCommand(readingsCmd)
}

func (a *App) readingsRun(cmd *cobra.Command, unitUUID string, filter readingsFilter) error {
	client, err := a.newClient(cmd.Context())
	if err != nil {
		return err
	}

	readings, err := client.Readings(cmd.Context(), unitUUID)
	if err != nil {
		return err
	}
	a.saveSession(client)

	if filter.readingType != "" {
		readings = readings.ByType(filter.readingType)
	}
	switch {
	case filter.current:
		readings = readings.Current(time.Now())
	case filter.year != 0 && filter.month != 0:
		readings = readings.ByYearMonth(filter.year, filter.month)
	case filter.year != 0:
		readings = readings.ByYear(filter.year)
	case filter.month != 0:
		readings = readings.ByMonth(filter.month)
	}

	if filter.asJSON {
		out, err := json.MarshalIndent(readings, "", "  ")
		if err != nil {
			return fmt.Errorf("could not format readings: %v", err)
		}
		fmt.Println(string(out))
		return nil
	}

	title := cases.Title(language.English)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD\tTYPE\tVALUE\tENERGY\tESTIMATED")
	for _, r := range readings {
		energy := "-"
		if r.EnergyUnit != "" {
			energy = fmt.Sprintf("%g %s", r.EnergyValue, r.EnergyUnit)
		}
		estimated := ""
		if r.Estimated {
			estimated = "yes"
		}
		fmt.Fprintf(w, "%04d-%02d\t%s\t%g %s\t%s\t%s\n",
			r.Year, r.Month, title.String(r.Type), r.Value, r.Unit, energy, estimated)
	}
	return w.Flush()
}
