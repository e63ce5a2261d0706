package census

import "github.com/gridscout/gridscout/internal/raster"

// The source data is classed, not continuous. Population classes map to the
// midpoint of their range so that aggregation yields approximate head counts.
// The other attributes map straight to a 0..3 desirability weight.

// PopMidpoints converts the six population classes to approximate inhabitants
// per cell.
func PopMidpoints() raster.ReclassTable {
	return raster.ReclassTable{
		1: 127,  // 3 .. 250
		2: 375,  // 250 .. 500
		3: 1250, // 500 .. 2000
		4: 3000, // 2000 .. 4000
		5: 6000, // 4000 .. 8000
		6: 8000, // open upper class
	}
}

// PopWeights scores population density for the suitability sum. Denser cells
// score higher.
func PopWeights() raster.ReclassTable {
	return raster.ReclassTable{
		1: 0,
		2: 1,
		3: 1,
		4: 2,
		5: 2,
		6: 3,
	}
}

// WomenWeights scores the share-of-women classes. The lowest class (highest
// share of the target demographic) scores highest.
func WomenWeights() raster.ReclassTable {
	return raster.ReclassTable{
		1: 3,
		2: 2,
		3: 1,
		4: 0,
		5: 0,
	}
}

// AgeWeights scores mean-age classes. Only the youngest class carries weight.
func AgeWeights() raster.ReclassTable {
	return raster.ReclassTable{
		1: 3,
		2: 0,
		3: 0,
		4: 0,
		5: 0,
	}
}

// HouseholdWeights scores mean household size. Small households score highest.
func HouseholdWeights() raster.ReclassTable {
	return raster.ReclassTable{
		1: 3,
		2: 2,
		3: 1,
		4: 0,
		5: 0,
	}
}
