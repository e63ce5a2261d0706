package export

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/gridscout/gridscout/internal/regions"
)

// WriteRegionsShapefile writes regions to an ESRI shapefile. Shapefiles want
// outer rings clockwise and holes counterclockwise, the opposite of the
// orientation the dissolver produces, so every ring is reversed on the way
// out.
func WriteRegionsShapefile(path string, regs []*regions.Region) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close() //nolint:errcheck

	fields := []shp.Field{
		shp.NumberField("ID", 10),
		shp.StringField("NAME", 64),
		shp.NumberField("CELLS", 10),
		shp.FloatField("POP", 16, 2),
		shp.FloatField("LON", 12, 6),
		shp.FloatField("LAT", 12, 6),
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "export: set shapefile fields")
	}

	for i, r := range regs {
		if r.Polygon == nil {
			continue
		}

		parts := make([][]shp.Point, 0, r.Polygon.NumLinearRings())
		for ring := 0; ring < r.Polygon.NumLinearRings(); ring++ {
			flat := r.Polygon.LinearRing(ring).FlatCoords()
			pts := make([]shp.Point, 0, len(flat)/2)
			for j := len(flat) - 2; j >= 0; j -= 2 {
				pts = append(pts, shp.Point{X: flat[j], Y: flat[j+1]})
			}
			parts = append(parts, pts)
		}
		poly := (*shp.Polygon)(shp.NewPolyLine(parts))
		w.Write(poly)

		attrs := []struct {
			field int
			value any
		}{
			{0, r.ID},
			{1, r.Name},
			{2, r.Cells},
			{3, r.Population},
			{4, r.CentroidLon},
			{5, r.CentroidLat},
		}
		for _, a := range attrs {
			if err := w.WriteAttribute(i, a.field, a.value); err != nil {
				return eris.Wrapf(err, "export: write attribute %d for region %d", a.field, r.ID)
			}
		}
	}
	return nil
}
