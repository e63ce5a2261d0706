// Package export writes pipeline results to GeoJSON, shapefile, and XLSX.
package export

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/gridscout/gridscout/internal/raster"
	"github.com/gridscout/gridscout/internal/regions"
)

// RegionsFeatureCollection converts regions to a GeoJSON feature collection.
// Geometries stay in the grid CRS; centroid lon/lat ride along as properties.
func RegionsFeatureCollection(regs []*regions.Region) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{}
	for _, r := range regs {
		var g geom.T
		if r.Polygon != nil {
			g = r.Polygon
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: g,
			Properties: map[string]any{
				"id":           r.ID,
				"name":         r.Name,
				"cells":        r.Cells,
				"population":   r.Population,
				"centroid_lon": r.CentroidLon,
				"centroid_lat": r.CentroidLat,
			},
		})
	}
	return fc
}

// SuitabilityFeatureCollection converts the set cells of a binary mask to
// one square feature per cell, carrying the total score where given.
func SuitabilityFeatureCollection(mask, score *raster.Band) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{}
	for row := 0; row < mask.Grid.Rows; row++ {
		for col := 0; col < mask.Grid.Cols; col++ {
			if mask.At(col, row) != 1 {
				continue
			}
			minX, minY, maxX, maxY := mask.Grid.CellBounds(col, row)
			poly := geom.NewPolygonFlat(geom.XY, []float64{
				minX, minY,
				maxX, minY,
				maxX, maxY,
				minX, maxY,
				minX, minY,
			}, []int{10})

			props := map[string]any{}
			if score != nil && !score.IsNoData(col, row) {
				props["score"] = score.At(col, row)
			}
			fc.Features = append(fc.Features, &geojson.Feature{Geometry: poly, Properties: props})
		}
	}
	return fc
}

// WriteGeoJSON writes a feature collection to path.
func WriteGeoJSON(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
