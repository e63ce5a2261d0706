package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Aggregate sums factor×factor blocks of cells into a coarser band. A block
// with at least one value sums its non-NoData members; an all-NoData block
// stays NoData. The output grid keeps the origin and SRID of the input.
func Aggregate(b *Band, factor int) (*Band, error) {
	if factor <= 1 {
		return nil, eris.Errorf("raster: aggregate factor must be > 1, got %d", factor)
	}

	coarse := Grid{
		OriginX:  b.Grid.OriginX,
		OriginY:  b.Grid.OriginY,
		CellSize: b.Grid.CellSize * float64(factor),
		Cols:     ceilDiv(b.Grid.Cols, factor),
		Rows:     ceilDiv(b.Grid.Rows, factor),
		SRID:     b.Grid.SRID,
	}
	out := NewBand(coarse, b.Name)

	for row := 0; row < coarse.Rows; row++ {
		for col := 0; col < coarse.Cols; col++ {
			sum := 0.0
			seen := false
			for dr := 0; dr < factor; dr++ {
				for dc := 0; dc < factor; dc++ {
					v := b.At(col*factor+dc, row*factor+dr)
					if !math.IsNaN(v) {
						sum += v
						seen = true
					}
				}
			}
			if seen {
				out.Set(col, row, sum)
			}
		}
	}

	return out, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
