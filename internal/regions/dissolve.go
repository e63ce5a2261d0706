package regions

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/gridscout/gridscout/internal/raster"
)

// Grid corner in cell units.
type vertex struct {
	c, r int
}

type edge struct {
	from, to vertex
	used     bool
}

// Dissolve traces the outline of one labeled component into a polygon with
// holes. Boundary edges are emitted with the interior on the left, so outer
// rings come out counterclockwise and hole rings clockwise.
func Dissolve(g raster.Grid, labels []int, id int) (*geom.Polygon, error) {
	in := func(col, row int) bool {
		if col < 0 || col >= g.Cols || row < 0 || row >= g.Rows {
			return false
		}
		return labels[row*g.Cols+col] == id
	}

	var edges []edge
	starts := make(map[vertex][]int)
	add := func(from, to vertex) {
		starts[from] = append(starts[from], len(edges))
		edges = append(edges, edge{from: from, to: to})
	}

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if !in(col, row) {
				continue
			}
			if !in(col, row-1) {
				add(vertex{col, row}, vertex{col + 1, row})
			}
			if !in(col+1, row) {
				add(vertex{col + 1, row}, vertex{col + 1, row + 1})
			}
			if !in(col, row+1) {
				add(vertex{col + 1, row + 1}, vertex{col, row + 1})
			}
			if !in(col-1, row) {
				add(vertex{col, row + 1}, vertex{col, row})
			}
		}
	}
	if len(edges) == 0 {
		return nil, eris.Errorf("regions: component %d has no cells", id)
	}

	var rings [][]vertex
	for i := range edges {
		if edges[i].used {
			continue
		}
		ring, err := traceRing(edges, starts, i)
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}

	// A connected component has exactly one outer ring; everything else
	// is a hole.
	outerIdx := -1
	for i, ring := range rings {
		if signedArea(ring) > 0 {
			if outerIdx >= 0 {
				return nil, eris.Errorf("regions: component %d produced multiple outer rings", id)
			}
			outerIdx = i
		}
	}
	if outerIdx < 0 {
		return nil, eris.Errorf("regions: component %d has no outer ring", id)
	}

	poly := geom.NewPolygon(geom.XY)
	if err := poly.Push(ringToLinearRing(g, rings[outerIdx])); err != nil {
		return nil, eris.Wrap(err, "regions: build outer ring")
	}
	for i, ring := range rings {
		if i == outerIdx {
			continue
		}
		if err := poly.Push(ringToLinearRing(g, ring)); err != nil {
			return nil, eris.Wrap(err, "regions: build hole ring")
		}
	}
	return poly, nil
}

// traceRing walks boundary edges starting at edges[start] until the ring
// closes. Where the boundary pinches at a corner it takes the rightmost
// turn, which keeps the trace on the boundary of the same void and so
// yields exactly one outer ring per component.
func traceRing(edges []edge, starts map[vertex][]int, start int) ([]vertex, error) {
	first := edges[start].from
	ring := []vertex{first}

	cur := start
	for {
		edges[cur].used = true
		end := edges[cur].to
		if end == first {
			return ring, nil
		}
		ring = append(ring, end)

		dir := vertex{edges[cur].to.c - edges[cur].from.c, edges[cur].to.r - edges[cur].from.r}
		next := -1
		// Preference order: right turn, straight, left turn.
		for _, want := range [3]vertex{{dir.r, -dir.c}, dir, {-dir.r, dir.c}} {
			for _, cand := range starts[end] {
				if edges[cand].used {
					continue
				}
				d := vertex{edges[cand].to.c - end.c, edges[cand].to.r - end.r}
				if d == want {
					next = cand
					break
				}
			}
			if next >= 0 {
				break
			}
		}
		if next < 0 {
			return nil, eris.New("regions: boundary ring does not close")
		}
		cur = next
	}
}

// signedArea is the shoelace sum in cell units. Positive means
// counterclockwise.
func signedArea(ring []vertex) float64 {
	var sum float64
	for i, v := range ring {
		w := ring[(i+1)%len(ring)]
		sum += float64(v.c*w.r - w.c*v.r)
	}
	return sum / 2
}

func ringToLinearRing(g raster.Grid, ring []vertex) *geom.LinearRing {
	simple := dropCollinear(ring)
	flat := make([]float64, 0, (len(simple)+1)*2)
	for _, v := range simple {
		flat = append(flat, g.OriginX+float64(v.c)*g.CellSize, g.OriginY+float64(v.r)*g.CellSize)
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewLinearRingFlat(geom.XY, flat)
}

// dropCollinear removes vertices that sit in the middle of a straight run,
// keeping only the corners of the outline.
func dropCollinear(ring []vertex) []vertex {
	n := len(ring)
	out := make([]vertex, 0, n)
	for i, v := range ring {
		prev := ring[(i-1+n)%n]
		next := ring[(i+1)%n]
		din := vertex{v.c - prev.c, v.r - prev.r}
		dout := vertex{next.c - v.c, next.r - v.r}
		if din != dout {
			out = append(out, v)
		}
	}
	return out
}
