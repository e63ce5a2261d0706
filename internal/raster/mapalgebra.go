package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Sum adds bands elementwise into a new band. All bands must share one grid.
// NoData propagates: a cell missing in any input is missing in the output,
// so partially-known cells never produce a misleadingly low score.
func Sum(name string, bands ...*Band) (*Band, error) {
	if len(bands) == 0 {
		return nil, eris.New("raster: sum of zero bands")
	}
	g := bands[0].Grid
	for _, b := range bands[1:] {
		if !b.Grid.Equal(g) {
			return nil, eris.Errorf("raster: band %q grid differs from %q", b.Name, bands[0].Name)
		}
	}

	out := NewBand(g, name)
	for i := range out.Cells {
		total := 0.0
		for _, b := range bands {
			v := b.Cells[i]
			if math.IsNaN(v) {
				total = math.NaN()
				break
			}
			total += v
		}
		out.Cells[i] = total
	}
	return out, nil
}

// GreaterThan returns a binary band: 1 where the cell exceeds min, 0 where it
// does not, NoData where the input is NoData.
func GreaterThan(b *Band, min float64, name string) *Band {
	out := NewBand(b.Grid, name)
	for i, v := range b.Cells {
		if math.IsNaN(v) {
			continue
		}
		if v > min {
			out.Cells[i] = 1
		} else {
			out.Cells[i] = 0
		}
	}
	return out
}

// MaskStats summarizes a binary band: cells set, cells clear, NoData count.
func MaskStats(b *Band) (set, clear, nodata int) {
	for _, v := range b.Cells {
		switch {
		case math.IsNaN(v):
			nodata++
		case v > 0:
			set++
		default:
			clear++
		}
	}
	return set, clear, nodata
}
