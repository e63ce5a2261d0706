package census

import (
	"github.com/rotisserie/eris"

	"github.com/gridscout/gridscout/internal/raster"
)

// Bands holds the four raw class rasters built from census records.
type Bands struct {
	Grid       raster.Grid
	Pop        *raster.Band
	Women      *raster.Band
	Age        *raster.Band
	Households *raster.Band
}

// BuildBands rasterizes records onto a grid inferred from their extent.
// Record coordinates are cell centers, so the extent is padded by half a
// cell on each side. Unknown classes (0) stay NoData.
func BuildBands(recs []Record, cellSize float64, srid int) (*Bands, error) {
	if len(recs) == 0 {
		return nil, eris.New("census: no records to rasterize")
	}

	minX, minY := recs[0].X, recs[0].Y
	maxX, maxY := minX, minY
	for _, rec := range recs[1:] {
		if rec.X < minX {
			minX = rec.X
		}
		if rec.X > maxX {
			maxX = rec.X
		}
		if rec.Y < minY {
			minY = rec.Y
		}
		if rec.Y > maxY {
			maxY = rec.Y
		}
	}

	half := cellSize / 2
	grid, err := raster.GridFromExtent(minX-half, minY-half, maxX+half, maxY+half, cellSize, srid)
	if err != nil {
		return nil, eris.Wrap(err, "census: build grid")
	}

	b := &Bands{
		Grid:       grid,
		Pop:        raster.NewBand(grid, "pop"),
		Women:      raster.NewBand(grid, "women"),
		Age:        raster.NewBand(grid, "age"),
		Households: raster.NewBand(grid, "households"),
	}

	for _, rec := range recs {
		col, row, ok := grid.Index(rec.X, rec.Y)
		if !ok {
			continue
		}
		setClass(b.Pop, col, row, rec.Pop)
		setClass(b.Women, col, row, rec.Women)
		setClass(b.Age, col, row, rec.Age)
		setClass(b.Households, col, row, rec.Households)
	}
	return b, nil
}

func setClass(band *raster.Band, col, row, class int) {
	if class > 0 {
		band.Set(col, row, float64(class))
	}
}
