package raster

// Point is a coordinate in the grid's CRS.
type Point struct {
	X float64
	Y float64
}

// CountPoints rasterizes point density: each cell holds the number of points
// falling inside it. Cells without points hold 0; points outside the grid are
// dropped and counted in the second return value.
func CountPoints(g Grid, pts []Point, name string) (*Band, int) {
	out := NewBand(g, name)
	for i := range out.Cells {
		out.Cells[i] = 0
	}

	dropped := 0
	for _, p := range pts {
		col, row, ok := g.Index(p.X, p.Y)
		if !ok {
			dropped++
			continue
		}
		out.Cells[row*g.Cols+col]++
	}
	return out, dropped
}
