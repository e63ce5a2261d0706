// Package raster implements the gridded data model for the scoring pipeline:
// a multi-band raster over a fixed equal-area grid, with reclassification,
// aggregation, map algebra, and natural-breaks classification.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Grid fixes the geometry every band shares: an axis-aligned regular grid in
// a projected CRS. OriginX/OriginY is the lower-left corner of cell (0,0);
// rows grow northward.
type Grid struct {
	OriginX  float64 `json:"origin_x"`
	OriginY  float64 `json:"origin_y"`
	CellSize float64 `json:"cell_size"`
	Cols     int     `json:"cols"`
	Rows     int     `json:"rows"`
	SRID     int     `json:"srid"`
}

// GridFromExtent builds the smallest grid of cellSize cells covering the
// given extent. The origin is snapped down to a cellSize multiple so that
// grids built from different subsets of the same dataset align.
func GridFromExtent(minX, minY, maxX, maxY, cellSize float64, srid int) (Grid, error) {
	if cellSize <= 0 {
		return Grid{}, eris.New("raster: cell size must be positive")
	}
	if maxX < minX || maxY < minY {
		return Grid{}, eris.Errorf("raster: invalid extent (%f,%f)-(%f,%f)", minX, minY, maxX, maxY)
	}

	originX := math.Floor(minX/cellSize) * cellSize
	originY := math.Floor(minY/cellSize) * cellSize
	cols := int(math.Ceil((maxX-originX)/cellSize)) + 1
	rows := int(math.Ceil((maxY-originY)/cellSize)) + 1

	return Grid{
		OriginX:  originX,
		OriginY:  originY,
		CellSize: cellSize,
		Cols:     cols,
		Rows:     rows,
		SRID:     srid,
	}, nil
}

// Index returns the cell containing the point, and whether it is in bounds.
func (g Grid) Index(x, y float64) (col, row int, ok bool) {
	col = int(math.Floor((x - g.OriginX) / g.CellSize))
	row = int(math.Floor((y - g.OriginY) / g.CellSize))
	return col, row, col >= 0 && col < g.Cols && row >= 0 && row < g.Rows
}

// CellCenter returns the center coordinate of the cell.
func (g Grid) CellCenter(col, row int) (x, y float64) {
	return g.OriginX + (float64(col)+0.5)*g.CellSize,
		g.OriginY + (float64(row)+0.5)*g.CellSize
}

// CellBounds returns the extent of the cell.
func (g Grid) CellBounds(col, row int) (minX, minY, maxX, maxY float64) {
	minX = g.OriginX + float64(col)*g.CellSize
	minY = g.OriginY + float64(row)*g.CellSize
	return minX, minY, minX + g.CellSize, minY + g.CellSize
}

// Equal reports whether two grids share identical geometry.
func (g Grid) Equal(o Grid) bool {
	return g.OriginX == o.OriginX && g.OriginY == o.OriginY &&
		g.CellSize == o.CellSize && g.Cols == o.Cols && g.Rows == o.Rows &&
		g.SRID == o.SRID
}

// Band is one raster layer. Cells are stored row-major; NaN marks NoData.
type Band struct {
	Grid  Grid
	Name  string
	Cells []float64
}

// NewBand allocates a band over g with every cell set to NoData.
func NewBand(g Grid, name string) *Band {
	cells := make([]float64, g.Cols*g.Rows)
	for i := range cells {
		cells[i] = math.NaN()
	}
	return &Band{Grid: g, Name: name, Cells: cells}
}

// At returns the value at (col, row). Out-of-bounds cells read as NoData.
func (b *Band) At(col, row int) float64 {
	if col < 0 || col >= b.Grid.Cols || row < 0 || row >= b.Grid.Rows {
		return math.NaN()
	}
	return b.Cells[row*b.Grid.Cols+col]
}

// Set writes the value at (col, row). Out-of-bounds writes are ignored.
func (b *Band) Set(col, row int, v float64) {
	if col < 0 || col >= b.Grid.Cols || row < 0 || row >= b.Grid.Rows {
		return
	}
	b.Cells[row*b.Grid.Cols+col] = v
}

// IsNoData reports whether the cell holds no value.
func (b *Band) IsNoData(col, row int) bool {
	return math.IsNaN(b.At(col, row))
}

// Values returns all non-NoData cell values.
func (b *Band) Values() []float64 {
	vals := make([]float64, 0, len(b.Cells))
	for _, v := range b.Cells {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	return vals
}
