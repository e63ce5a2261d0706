package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid(cols, rows int) Grid {
	return Grid{OriginX: 0, OriginY: 0, CellSize: 1000, Cols: cols, Rows: rows, SRID: 3035}
}

func TestReclassify(t *testing.T) {
	g := testGrid(2, 2)
	b := NewBand(g, "pop")
	b.Set(0, 0, 1)
	b.Set(1, 0, 3)
	b.Set(0, 1, 6)
	// (1,1) stays NoData

	table := ReclassTable{1: 127, 3: 1250, 6: 8000}
	out := Reclassify(b, table, "inhabitants")

	assert.Equal(t, 127.0, out.At(0, 0))
	assert.Equal(t, 1250.0, out.At(1, 0))
	assert.Equal(t, 8000.0, out.At(0, 1))
	assert.True(t, out.IsNoData(1, 1))
}

func TestReclassifyUnknownClassStaysNoData(t *testing.T) {
	g := testGrid(1, 1)
	b := NewBand(g, "x")
	b.Set(0, 0, 9) // sentinel class not in table

	out := Reclassify(b, ReclassTable{1: 10}, "y")
	assert.True(t, out.IsNoData(0, 0))
}

func TestAggregateSums(t *testing.T) {
	g := testGrid(4, 4)
	b := NewBand(g, "pop")
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			b.Set(col, row, 1)
		}
	}

	out, err := Aggregate(b, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Grid.Cols)
	assert.Equal(t, 2, out.Grid.Rows)
	assert.Equal(t, 2000.0, out.Grid.CellSize)
	for row := 0; row < 2; row++ {
		for col := 0; col < 2; col++ {
			assert.Equal(t, 4.0, out.At(col, row))
		}
	}
}

func TestAggregatePartialBlocks(t *testing.T) {
	// 3x3 input with factor 2 leaves ragged edge blocks.
	g := testGrid(3, 3)
	b := NewBand(g, "pop")
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			b.Set(col, row, 2)
		}
	}

	out, err := Aggregate(b, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Grid.Cols)
	assert.Equal(t, 8.0, out.At(0, 0))
	assert.Equal(t, 4.0, out.At(1, 0), "edge block has 2 cells")
	assert.Equal(t, 2.0, out.At(1, 1), "corner block has 1 cell")
}

func TestAggregateNoDataBlocks(t *testing.T) {
	g := testGrid(4, 2)
	b := NewBand(g, "pop")
	b.Set(0, 0, 5) // only one value in the first block; second block all NoData

	out, err := Aggregate(b, 2)
	require.NoError(t, err)
	assert.Equal(t, 5.0, out.At(0, 0))
	assert.True(t, out.IsNoData(1, 0))
}

func TestAggregateInvalidFactor(t *testing.T) {
	b := NewBand(testGrid(2, 2), "x")
	_, err := Aggregate(b, 1)
	assert.Error(t, err)
}

func TestSumPropagatesNoData(t *testing.T) {
	g := testGrid(2, 1)
	a := NewBand(g, "a")
	b := NewBand(g, "b")
	a.Set(0, 0, 1)
	b.Set(0, 0, 2)
	a.Set(1, 0, 3)
	// b at (1,0) stays NoData

	out, err := Sum("total", a, b)
	require.NoError(t, err)
	assert.Equal(t, 3.0, out.At(0, 0))
	assert.True(t, out.IsNoData(1, 0))
}

func TestSumGridMismatch(t *testing.T) {
	a := NewBand(testGrid(2, 2), "a")
	b := NewBand(testGrid(3, 2), "b")
	_, err := Sum("total", a, b)
	assert.Error(t, err)
}

func TestGreaterThan(t *testing.T) {
	g := testGrid(3, 1)
	b := NewBand(g, "pop")
	b.Set(0, 0, 400000)
	b.Set(1, 0, 600000)

	mask := GreaterThan(b, 500000, "metro")
	assert.Equal(t, 0.0, mask.At(0, 0))
	assert.Equal(t, 1.0, mask.At(1, 0))
	assert.True(t, mask.IsNoData(2, 0))

	set, clear, nodata := MaskStats(mask)
	assert.Equal(t, 1, set)
	assert.Equal(t, 1, clear)
	assert.Equal(t, 1, nodata)
}

func TestCountPoints(t *testing.T) {
	g := testGrid(2, 2)
	pts := []Point{
		{X: 500, Y: 500},
		{X: 600, Y: 400},
		{X: 1500, Y: 1500},
		{X: -10, Y: 0}, // outside
	}

	out, dropped := CountPoints(g, pts, "poi")
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 2.0, out.At(0, 0))
	assert.Equal(t, 1.0, out.At(1, 1))
	assert.Equal(t, 0.0, out.At(1, 0))
	assert.False(t, math.IsNaN(out.At(0, 1)))
}
