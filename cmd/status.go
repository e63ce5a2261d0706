package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridscout/gridscout/internal/store"
)

var statusRunID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline run status",
	Long:  "Display recent pipeline runs with their region, POI, and suitability counts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if statusRunID != "" {
			run, err := st.GetRun(ctx, statusRunID)
			if err != nil {
				return err
			}
			formatRuns(os.Stdout, []store.Run{*run})
			return nil
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 20})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			zap.L().Info("no runs found")
			return nil
		}

		formatRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusRunID, "run-id", "", "show a single run")
	rootCmd.AddCommand(statusCmd)
}

func formatRuns(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tREGIONS\tPOIS\tSUITABLE\tPOPULATION\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t----\t--------\t----------\t-------")

	for _, r := range runs {
		regionsN, poisN, suitableN := "-", "-", "-"
		population := "-"
		if r.Result != nil {
			regionsN = fmt.Sprintf("%d", r.Result.Regions)
			poisN = fmt.Sprintf("%d", r.Result.POIs)
			suitableN = fmt.Sprintf("%d", r.Result.SuitableCells)
			population = fmt.Sprintf("%.0f", r.Result.TotalPopulation)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.Status,
			regionsN,
			poisN,
			suitableN,
			population,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
