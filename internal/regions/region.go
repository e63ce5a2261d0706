// Package regions turns a binary raster mask into labeled, polygonized
// metropolitan areas.
package regions

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/gridscout/gridscout/internal/raster"
)

// Region is one connected area of the mask with its dissolved outline.
// Coordinates are in the grid's CRS; CentroidLon/Lat are filled by the
// caller after reprojection, Name by the reverse geocoder.
type Region struct {
	ID          int           `json:"id"`
	Name        string        `json:"name,omitempty"`
	Cells       int           `json:"cells"`
	Population  float64       `json:"population"`
	CentroidX   float64       `json:"centroid_x"`
	CentroidY   float64       `json:"centroid_y"`
	CentroidLon float64       `json:"centroid_lon,omitempty"`
	CentroidLat float64       `json:"centroid_lat,omitempty"`
	Polygon     *geom.Polygon `json:"-"`
}

// Contains reports whether a point in the grid CRS falls inside the region
// outline, holes excluded.
func (r *Region) Contains(x, y float64) bool {
	if r.Polygon == nil {
		return false
	}
	pt := geom.Coord{x, y}
	outer := r.Polygon.LinearRing(0)
	if !xy.IsPointInRing(geom.XY, pt, outer.FlatCoords()) {
		return false
	}
	for i := 1; i < r.Polygon.NumLinearRings(); i++ {
		if xy.IsPointInRing(geom.XY, pt, r.Polygon.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// FromMask labels the connected areas of a binary mask and dissolves each
// one into a polygon. The pop band, when given on the same grid, fills the
// per-region population sums.
func FromMask(mask, pop *raster.Band) ([]*Region, error) {
	labels, count := Label(mask)
	out := make([]*Region, 0, count)

	for id := 1; id <= count; id++ {
		var (
			cells      int
			sumX, sumY float64
			population float64
		)
		for row := 0; row < mask.Grid.Rows; row++ {
			for col := 0; col < mask.Grid.Cols; col++ {
				if labels[row*mask.Grid.Cols+col] != id {
					continue
				}
				cells++
				cx, cy := mask.Grid.CellCenter(col, row)
				sumX += cx
				sumY += cy
				if pop != nil && !pop.IsNoData(col, row) {
					population += pop.At(col, row)
				}
			}
		}

		poly, err := Dissolve(mask.Grid, labels, id)
		if err != nil {
			return nil, err
		}

		out = append(out, &Region{
			ID:         id,
			Cells:      cells,
			Population: population,
			CentroidX:  sumX / float64(cells),
			CentroidY:  sumY / float64(cells),
			Polygon:    poly,
		})
	}
	return out, nil
}
