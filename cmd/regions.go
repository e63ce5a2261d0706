package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridscout/gridscout/internal/regions"
)

var regionsRunID string

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List detected metropolitan regions",
	Long:  "Lists the regions of a run with name, cell count, population, and centroid. Defaults to the latest completed run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runID := regionsRunID
		if runID == "" {
			run, err := latestRun(ctx, st)
			if err != nil {
				return err
			}
			runID = run.ID
		}

		regs, err := st.ListRegions(ctx, runID)
		if err != nil {
			return err
		}
		if len(regs) == 0 {
			zap.L().Info("no regions for run", zap.String("run", runID))
			return nil
		}

		formatRegions(os.Stdout, regs)
		return nil
	},
}

func init() {
	regionsCmd.Flags().StringVar(&regionsRunID, "run-id", "", "run to list (default latest completed)")
	rootCmd.AddCommand(regionsCmd)
}

func formatRegions(out io.Writer, regs []*regions.Region) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCELLS\tPOPULATION\tLAT\tLON")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t----------\t---\t---")

	for _, r := range regs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%.0f\t%.4f\t%.4f\n",
			r.ID,
			r.Name,
			r.Cells,
			r.Population,
			r.CentroidLat,
			r.CentroidLon,
		)
	}
	_ = w.Flush()
}
