package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Region outlines are stored as GeoJSON text so both backends can hold them
// without a spatial extension.

func encodeGeometry(p *geom.Polygon) (string, error) {
	if p == nil {
		return "", nil
	}
	data, err := geojson.Marshal(p)
	if err != nil {
		return "", eris.Wrap(err, "store: encode geometry")
	}
	return string(data), nil
}

func decodeGeometry(s string) (*geom.Polygon, error) {
	if s == "" {
		return nil, nil
	}
	var g geom.T
	if err := geojson.Unmarshal([]byte(s), &g); err != nil {
		return nil, eris.Wrap(err, "store: decode geometry")
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("store: geometry is %T, want polygon", g)
	}
	return poly, nil
}
