package raster

import (
	"math"
)

// ReclassTable maps ordinal input classes to numeric output values.
type ReclassTable map[int]float64

// Reclassify returns a new band where each cell's class value is replaced by
// its table entry. NoData cells and classes missing from the table stay
// NoData: an unknown class carries no information, it must not score as zero.
func Reclassify(b *Band, table ReclassTable, name string) *Band {
	out := NewBand(b.Grid, name)
	for i, v := range b.Cells {
		if math.IsNaN(v) {
			continue
		}
		if mapped, ok := table[int(v)]; ok {
			out.Cells[i] = mapped
		}
	}
	return out
}
