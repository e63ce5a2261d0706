// Package census parses the gridded census CSV (1 km population grid with
// classed demographic attributes) and builds raster bands from it.
package census

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// The source publishes suppressed or implausible cells as sentinel classes.
// Both mean "unknown" for scoring purposes.
const (
	SentinelSuppressed  = -9
	SentinelImplausible = -1
)

// Record is one grid cell row: the cell center in EPSG:3035 plus four
// mutually exclusive ordinal class attributes. A class of 0 means unknown.
type Record struct {
	GridID     string  `json:"grid_id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Pop        int     `json:"pop"`
	Women      int     `json:"women"`
	Age        int     `json:"age"`
	Households int     `json:"households"`
}

// Source CSV column names (Zensus 2011 1 km grid).
const (
	colGridID     = "gitter_id_1km"
	colX          = "x_mp_1km"
	colY          = "y_mp_1km"
	colPop        = "einwohner"
	colWomen      = "frauen_a"
	colAge        = "alter_d"
	colHouseholds = "hhgroesse_d"
)

// Header maps the columns the pipeline needs to their CSV positions.
type Header struct {
	gridID, x, y, pop, women, age, households int
}

// ParseHeader locates the required columns, case-insensitively.
func ParseHeader(cols []string) (*Header, error) {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[strings.ToLower(strings.TrimSpace(c))] = i
	}

	h := &Header{gridID: -1}
	if i, ok := idx[colGridID]; ok {
		h.gridID = i
	}

	var err error
	required := []struct {
		name string
		dst  *int
	}{
		{colX, &h.x},
		{colY, &h.y},
		{colPop, &h.pop},
		{colWomen, &h.women},
		{colAge, &h.age},
		{colHouseholds, &h.households},
	}
	for _, r := range required {
		i, ok := idx[r.name]
		if !ok {
			err = eris.Errorf("census: missing column %q", r.name)
			break
		}
		*r.dst = i
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ParseRow converts one CSV row into a Record. Sentinel classes become 0.
func (h *Header) ParseRow(row []string) (Record, error) {
	var rec Record

	need := h.x
	if h.y > need {
		need = h.y
	}
	for _, i := range []int{h.pop, h.women, h.age, h.households, h.gridID} {
		if i > need {
			need = i
		}
	}
	if len(row) <= need {
		return rec, eris.Errorf("census: row has %d fields, need %d", len(row), need+1)
	}

	if h.gridID >= 0 {
		rec.GridID = strings.TrimSpace(row[h.gridID])
	}

	var err error
	rec.X, err = parseCoord(row[h.x])
	if err != nil {
		return rec, eris.Wrap(err, "census: parse x")
	}
	rec.Y, err = parseCoord(row[h.y])
	if err != nil {
		return rec, eris.Wrap(err, "census: parse y")
	}

	rec.Pop, err = parseClass(row[h.pop])
	if err != nil {
		return rec, eris.Wrap(err, "census: parse population class")
	}
	rec.Women, err = parseClass(row[h.women])
	if err != nil {
		return rec, eris.Wrap(err, "census: parse women class")
	}
	rec.Age, err = parseClass(row[h.age])
	if err != nil {
		return rec, eris.Wrap(err, "census: parse age class")
	}
	rec.Households, err = parseClass(row[h.households])
	if err != nil {
		return rec, eris.Wrap(err, "census: parse household class")
	}

	return rec, nil
}

func parseCoord(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// parseClass reads an ordinal class, mapping sentinels to 0.
func parseClass(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, eris.Wrapf(err, "invalid class %q", s)
	}
	if v == SentinelSuppressed || v == SentinelImplausible {
		return 0, nil
	}
	if v < 0 {
		return 0, eris.Errorf("unexpected negative class %d", v)
	}
	return v, nil
}
