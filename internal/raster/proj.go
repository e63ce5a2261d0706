package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// ETRS89-LAEA (EPSG:3035) projection parameters: GRS80 ellipsoid, projection
// center 52°N 10°E, false easting/northing 4321000/3210000. The census grid
// is published in this CRS; the external geocoding and POI services speak
// WGS84 lon/lat, so both directions are needed. Formulas are the standard
// ellipsoidal Lambert azimuthal equal-area equations (Snyder, "Map
// Projections: A Working Manual", §24).
const (
	laeaA    = 6378137.0
	laeaF    = 1.0 / 298.257222101
	laeaLat0 = 52.0
	laeaLon0 = 10.0
	laeaFE   = 4321000.0
	laeaFN   = 3210000.0
)

var (
	laeaE2 = laeaF * (2 - laeaF)
	laeaE  = math.Sqrt(laeaE2)
	laeaQp = authalicQ(math.Pi / 2)
	laeaRq = laeaA * math.Sqrt(laeaQp/2)

	laeaBeta1 = math.Asin(authalicQ(rad(laeaLat0)) / laeaQp)
	laeaM1    = math.Cos(rad(laeaLat0)) / math.Sqrt(1-laeaE2*sq(math.Sin(rad(laeaLat0))))
	laeaD     = laeaA * laeaM1 / (laeaRq * math.Cos(laeaBeta1))
)

func rad(deg float64) float64 { return deg * math.Pi / 180 }
func deg(rad float64) float64 { return rad * 180 / math.Pi }
func sq(v float64) float64    { return v * v }

// authalicQ is Snyder's q: the ellipsoidal equal-area auxiliary.
func authalicQ(phi float64) float64 {
	s := math.Sin(phi)
	return (1 - laeaE2) * (s/(1-laeaE2*s*s) - (1/(2*laeaE))*math.Log((1-laeaE*s)/(1+laeaE*s)))
}

// ToLAEA projects WGS84 lon/lat (degrees) to EPSG:3035 easting/northing.
func ToLAEA(lon, lat float64) (x, y float64, err error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, eris.Errorf("raster: coordinate out of range (%f, %f)", lon, lat)
	}

	phi := rad(lat)
	dLam := rad(lon - laeaLon0)

	beta := math.Asin(authalicQ(phi) / laeaQp)
	denom := 1 + math.Sin(laeaBeta1)*math.Sin(beta) + math.Cos(laeaBeta1)*math.Cos(beta)*math.Cos(dLam)
	if denom <= 0 {
		return 0, 0, eris.Errorf("raster: point (%f, %f) is antipodal to projection center", lon, lat)
	}
	b := laeaRq * math.Sqrt(2/denom)

	x = laeaFE + b*laeaD*math.Cos(beta)*math.Sin(dLam)
	y = laeaFN + (b/laeaD)*(math.Cos(laeaBeta1)*math.Sin(beta)-math.Sin(laeaBeta1)*math.Cos(beta)*math.Cos(dLam))
	return x, y, nil
}

// FromLAEA inverts EPSG:3035 easting/northing to WGS84 lon/lat (degrees).
func FromLAEA(x, y float64) (lon, lat float64, err error) {
	xp := x - laeaFE
	yp := y - laeaFN

	rho := math.Hypot(xp/laeaD, laeaD*yp)
	if rho == 0 {
		return laeaLon0, laeaLat0, nil
	}
	if rho > 2*laeaRq {
		return 0, 0, eris.Errorf("raster: point (%f, %f) outside projection domain", x, y)
	}

	ce := 2 * math.Asin(rho/(2*laeaRq))
	q := laeaQp * (math.Cos(ce)*math.Sin(laeaBeta1) + (laeaD*yp*math.Sin(ce)*math.Cos(laeaBeta1))/rho)

	lam := math.Atan2(xp*math.Sin(ce),
		laeaD*rho*math.Cos(laeaBeta1)*math.Cos(ce)-sq(laeaD)*yp*math.Sin(laeaBeta1)*math.Sin(ce))

	// Newton iteration for the latitude from its authalic q.
	phi := math.Asin(clamp(q/2, -1, 1))
	for i := 0; i < 10; i++ {
		s := math.Sin(phi)
		corr := sq(1-laeaE2*s*s) / (2 * math.Cos(phi)) *
			(q/(1-laeaE2) - s/(1-laeaE2*s*s) + (1/(2*laeaE))*math.Log((1-laeaE*s)/(1+laeaE*s)))
		phi += corr
		if math.Abs(corr) < 1e-12 {
			break
		}
	}

	return laeaLon0 + deg(lam), deg(phi), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
