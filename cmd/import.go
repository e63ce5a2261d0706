package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridscout/gridscout/internal/pipeline"
)

var importURL string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Download and import the gridded census",
	Long:  "Downloads the census ZIP archive, extracts the 1 km grid CSV, and loads it into the store, replacing any previous import.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if importURL != "" {
			cfg.Census.URL = importURL
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := pipeline.New(cfg, st)
		summary, err := p.ImportCensus(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.Int("rows", summary.Rows),
			zap.Int("skipped", summary.Skipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importURL, "url", "", "census archive URL (default from config)")
	rootCmd.AddCommand(importCmd)
}
