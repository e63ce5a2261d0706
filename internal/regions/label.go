package regions

import "github.com/gridscout/gridscout/internal/raster"

// Label runs 4-connected component labeling over the set cells of a binary
// mask. It returns a row-major label array (0 = background) and the number
// of components found. Labels start at 1 and are assigned in scan order, so
// they are stable for a given mask.
func Label(mask *raster.Band) ([]int, int) {
	cols, rows := mask.Grid.Cols, mask.Grid.Rows
	labels := make([]int, cols*rows)
	next := 0

	var stack [][2]int
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			if labels[row*cols+col] != 0 || mask.At(col, row) != 1 {
				continue
			}
			next++
			stack = append(stack[:0], [2]int{col, row})
			labels[row*cols+col] = next

			for len(stack) > 0 {
				c := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nc, nr := c[0]+d[0], c[1]+d[1]
					if nc < 0 || nc >= cols || nr < 0 || nr >= rows {
						continue
					}
					if labels[nr*cols+nc] != 0 || mask.At(nc, nr) != 1 {
						continue
					}
					labels[nr*cols+nc] = next
					stack = append(stack, [2]int{nc, nr})
				}
			}
		}
	}
	return labels, next
}
