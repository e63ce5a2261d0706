package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridFromExtent(t *testing.T) {
	g, err := GridFromExtent(4030500, 2680500, 4032500, 2681500, 1000, 3035)
	require.NoError(t, err)

	// Origin snaps down to a cell-size multiple.
	assert.Equal(t, 4030000.0, g.OriginX)
	assert.Equal(t, 2680000.0, g.OriginY)
	assert.Equal(t, 4, g.Cols)
	assert.Equal(t, 3, g.Rows)
	assert.Equal(t, 3035, g.SRID)
}

func TestGridFromExtentInvalid(t *testing.T) {
	_, err := GridFromExtent(0, 0, 10, 10, 0, 3035)
	assert.Error(t, err)

	_, err = GridFromExtent(10, 0, 0, 10, 1000, 3035)
	assert.Error(t, err)
}

func TestGridIndexRoundTrip(t *testing.T) {
	g := Grid{OriginX: 4000000, OriginY: 2600000, CellSize: 1000, Cols: 10, Rows: 8, SRID: 3035}

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			x, y := g.CellCenter(col, row)
			c, r, ok := g.Index(x, y)
			require.True(t, ok)
			assert.Equal(t, col, c)
			assert.Equal(t, row, r)
		}
	}

	_, _, ok := g.Index(3999999, 2600001)
	assert.False(t, ok)
	_, _, ok = g.Index(4010001, 2600001)
	assert.False(t, ok)
}

func TestCellBounds(t *testing.T) {
	g := Grid{OriginX: 100, OriginY: 200, CellSize: 10, Cols: 5, Rows: 5}
	minX, minY, maxX, maxY := g.CellBounds(2, 3)
	assert.Equal(t, 120.0, minX)
	assert.Equal(t, 230.0, minY)
	assert.Equal(t, 130.0, maxX)
	assert.Equal(t, 240.0, maxY)
}

func TestBandDefaultsToNoData(t *testing.T) {
	g := Grid{OriginX: 0, OriginY: 0, CellSize: 1, Cols: 3, Rows: 2}
	b := NewBand(g, "pop")

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			assert.True(t, b.IsNoData(col, row))
		}
	}

	b.Set(1, 1, 42)
	assert.Equal(t, 42.0, b.At(1, 1))
	assert.False(t, b.IsNoData(1, 1))
}

func TestBandOutOfBounds(t *testing.T) {
	g := Grid{OriginX: 0, OriginY: 0, CellSize: 1, Cols: 2, Rows: 2}
	b := NewBand(g, "x")

	assert.True(t, math.IsNaN(b.At(-1, 0)))
	assert.True(t, math.IsNaN(b.At(0, 5)))
	b.Set(5, 5, 1) // ignored
	assert.Empty(t, b.Values())
}

func TestBandValues(t *testing.T) {
	g := Grid{OriginX: 0, OriginY: 0, CellSize: 1, Cols: 2, Rows: 2}
	b := NewBand(g, "x")
	b.Set(0, 0, 1)
	b.Set(1, 1, 3)
	assert.ElementsMatch(t, []float64{1, 3}, b.Values())
}

func TestGridEqual(t *testing.T) {
	g := Grid{OriginX: 0, OriginY: 0, CellSize: 1, Cols: 2, Rows: 2, SRID: 3035}
	assert.True(t, g.Equal(g))
	other := g
	other.CellSize = 2
	assert.False(t, g.Equal(other))
}
