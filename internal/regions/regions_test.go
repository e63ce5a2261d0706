package regions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridscout/gridscout/internal/raster"
)

func maskFromRows(rows [][]int) *raster.Band {
	g := raster.Grid{
		OriginX: 0, OriginY: 0, CellSize: 1000,
		Cols: len(rows[0]), Rows: len(rows), SRID: 3035,
	}
	b := raster.NewBand(g, "mask")
	for row := range rows {
		for col, v := range rows[row] {
			b.Set(col, row, float64(v))
		}
	}
	return b
}

func TestLabelSeparatesComponents(t *testing.T) {
	mask := maskFromRows([][]int{
		{1, 1, 0, 1},
		{0, 1, 0, 1},
		{0, 0, 0, 0},
		{1, 0, 0, 0},
	})

	labels, count := Label(mask)
	assert.Equal(t, 3, count)
	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[0], labels[mask.Grid.Cols+1])
	assert.NotEqual(t, labels[0], labels[3])
	assert.Equal(t, 0, labels[2], "background stays unlabeled")
}

func TestLabelDiagonalNotConnected(t *testing.T) {
	mask := maskFromRows([][]int{
		{1, 0},
		{0, 1},
	})
	_, count := Label(mask)
	assert.Equal(t, 2, count)
}

func TestDissolveSingleCell(t *testing.T) {
	mask := maskFromRows([][]int{{1}})
	labels, count := Label(mask)
	require.Equal(t, 1, count)

	poly, err := Dissolve(mask.Grid, labels, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, poly.NumLinearRings())
	assert.InDelta(t, 1000*1000, poly.Area(), 1e-6)
}

func TestDissolveRectangle(t *testing.T) {
	mask := maskFromRows([][]int{
		{1, 1, 1},
		{1, 1, 1},
	})
	labels, count := Label(mask)
	require.Equal(t, 1, count)

	poly, err := Dissolve(mask.Grid, labels, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, poly.NumLinearRings())
	assert.InDelta(t, 6*1000*1000, poly.Area(), 1e-6)
	// The dissolved outline has no interior vertices, only the 4 corners.
	assert.Equal(t, 5, poly.LinearRing(0).NumCoords())
}

func TestDissolveDonutHasHole(t *testing.T) {
	mask := maskFromRows([][]int{
		{1, 1, 1},
		{1, 0, 1},
		{1, 1, 1},
	})
	labels, count := Label(mask)
	require.Equal(t, 1, count)

	poly, err := Dissolve(mask.Grid, labels, 1)
	require.NoError(t, err)
	require.Equal(t, 2, poly.NumLinearRings())
	assert.InDelta(t, 8*1000*1000, poly.Area(), 1e-6)
}

func TestDissolvePinchedComponent(t *testing.T) {
	// Two blocks of the same component touch only at a corner. The trace
	// must still close both loops.
	mask := maskFromRows([][]int{
		{0, 1, 1},
		{1, 0, 1},
		{1, 1, 1},
	})
	labels, count := Label(mask)
	require.Equal(t, 1, count)

	poly, err := Dissolve(mask.Grid, labels, 1)
	require.NoError(t, err)
	assert.InDelta(t, 7*1000*1000, poly.Area(), 1e-6)
}

func TestFromMask(t *testing.T) {
	mask := maskFromRows([][]int{
		{1, 1, 0},
		{0, 0, 0},
		{0, 0, 1},
	})
	pop := raster.NewBand(mask.Grid, "pop")
	pop.Set(0, 0, 300000)
	pop.Set(1, 0, 400000)
	pop.Set(2, 2, 600000)

	regs, err := FromMask(mask, pop)
	require.NoError(t, err)
	require.Len(t, regs, 2)

	assert.Equal(t, 1, regs[0].ID)
	assert.Equal(t, 2, regs[0].Cells)
	assert.Equal(t, 700000.0, regs[0].Population)
	assert.Equal(t, 1000.0, regs[0].CentroidX, "mean of the two cell centers")
	assert.Equal(t, 500.0, regs[0].CentroidY)

	assert.Equal(t, 1, regs[1].Cells)
	assert.Equal(t, 600000.0, regs[1].Population)
}

func TestRegionContains(t *testing.T) {
	mask := maskFromRows([][]int{
		{1, 1, 1},
		{1, 0, 1},
		{1, 1, 1},
	})
	regs, err := FromMask(mask, nil)
	require.NoError(t, err)
	require.Len(t, regs, 1)

	r := regs[0]
	assert.True(t, r.Contains(500, 500), "corner cell")
	assert.False(t, r.Contains(1500, 1500), "inside the hole")
	assert.False(t, r.Contains(5000, 5000), "outside the outline")
}
