package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridscout/gridscout/internal/export"
	"github.com/gridscout/gridscout/internal/pipeline"
)

var (
	runForce        bool
	runGeoJSONPath  string
	runShapePath    string
	runReportPath   string
	runSuitablePath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the full suitability pipeline",
	Long:  "Runs census import (reusing an existing import unless --force), region detection, POI scoring, and optionally writes exports.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := pipeline.New(cfg, st)
		res, err := p.Run(ctx, runForce)
		if err != nil {
			return err
		}

		if runGeoJSONPath != "" {
			fc := export.RegionsFeatureCollection(res.Regions.Regions)
			if err := export.WriteGeoJSON(runGeoJSONPath, fc); err != nil {
				return err
			}
			zap.L().Info("regions written", zap.String("path", runGeoJSONPath))
		}
		if runSuitablePath != "" {
			fc := export.SuitabilityFeatureCollection(res.Score.Suitable, res.Score.Total)
			if err := export.WriteGeoJSON(runSuitablePath, fc); err != nil {
				return err
			}
			zap.L().Info("suitability cells written", zap.String("path", runSuitablePath))
		}
		if runShapePath != "" {
			if err := export.WriteRegionsShapefile(runShapePath, res.Regions.Regions); err != nil {
				return err
			}
			zap.L().Info("shapefile written", zap.String("path", runShapePath))
		}
		if runReportPath != "" {
			if err := export.WriteScoreReport(runReportPath, res.Run, res.Regions.Regions); err != nil {
				return err
			}
			zap.L().Info("report written", zap.String("path", runReportPath))
		}

		zap.L().Info("run complete",
			zap.String("run", res.Run.ID),
			zap.Int("regions", res.Run.Result.Regions),
			zap.Int("pois", res.Run.Result.POIs),
			zap.Int("suitable_cells", res.Run.Result.SuitableCells),
		)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "re-download the census even if already imported")
	runCmd.Flags().StringVar(&runGeoJSONPath, "geojson", "", "write region polygons as GeoJSON to this path")
	runCmd.Flags().StringVar(&runSuitablePath, "suitability", "", "write suitable cells as GeoJSON to this path")
	runCmd.Flags().StringVar(&runShapePath, "shapefile", "", "write region polygons as a shapefile to this path")
	runCmd.Flags().StringVar(&runReportPath, "xlsx", "", "write the score report workbook to this path")
	rootCmd.AddCommand(runCmd)
}
