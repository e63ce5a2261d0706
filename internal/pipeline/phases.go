package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gridscout/gridscout/internal/census"
	"github.com/gridscout/gridscout/internal/fetcher"
	"github.com/gridscout/gridscout/internal/raster"
	"github.com/gridscout/gridscout/internal/regions"
	"github.com/gridscout/gridscout/pkg/overpass"
)

// ImportCensus downloads the census archive, extracts the grid CSV, and
// streams it into the store, replacing any previous import.
func (p *Pipeline) ImportCensus(ctx context.Context) (*census.Summary, error) {
	tempDir := p.cfg.Census.TempDir
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "pipeline: create temp dir")
	}

	zipPath := filepath.Join(tempDir, "census.zip")
	n, err := p.fetch.DownloadToFile(ctx, p.censusURL(), zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: download census archive")
	}
	zap.L().Info("census archive downloaded",
		zap.String("url", p.censusURL()),
		zap.Int64("bytes", n))

	csvPath, err := fetcher.ExtractZIPFile(zipPath, p.cfg.Census.CSVName, tempDir)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: open census csv")
	}
	defer f.Close() //nolint:errcheck

	if err := p.store.ClearRecords(ctx); err != nil {
		return nil, err
	}

	loader := &census.Loader{Encoding: p.cfg.Census.Encoding}
	return loader.Load(ctx, f, p.store)
}

// RegionsResult carries the raster stack and the detected regions.
type RegionsResult struct {
	Bands   *census.Bands
	PopAgg  *raster.Band
	Mask    *raster.Band
	Regions []*regions.Region
}

// BuildRegions rasterizes the stored census cells, finds areas above the
// population threshold, polygonizes them, and names them via reverse
// geocoding.
func (p *Pipeline) BuildRegions(ctx context.Context) (*RegionsResult, error) {
	recs, err := p.store.LoadRecords(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, eris.New("pipeline: no census cells loaded, run import first")
	}

	bands, err := census.BuildBands(recs, p.cfg.Grid.CellSize, p.cfg.Grid.SRID)
	if err != nil {
		return nil, err
	}

	inhabitants := raster.Reclassify(bands.Pop, census.PopMidpoints(), "inhabitants")
	popAgg, err := raster.Aggregate(inhabitants, p.cfg.Regions.AggregateFactor)
	if err != nil {
		return nil, err
	}
	mask := raster.GreaterThan(popAgg, p.cfg.Regions.MinInhabitants, "metro")

	regs, err := regions.FromMask(mask, popAgg)
	if err != nil {
		return nil, err
	}
	zap.L().Info("metropolitan areas detected", zap.Int("regions", len(regs)))

	for _, r := range regs {
		lon, lat, err := raster.FromLAEA(r.CentroidX, r.CentroidY)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: project centroid of region %d", r.ID)
		}
		r.CentroidLon = lon
		r.CentroidLat = lat

		// A region that cannot be named is still a region. Retries live in
		// the geocode client; an exhausted lookup falls back here.
		res, err := p.geo.Reverse(ctx, lat, lon)
		switch {
		case err != nil:
			zap.L().Warn("reverse geocode failed, using fallback name",
				zap.Int("region", r.ID),
				zap.Error(err))
			r.Name = fallbackRegionName(r.ID)
		case res.Matched && res.Name != "":
			r.Name = res.Name
		default:
			r.Name = fallbackRegionName(r.ID)
		}
		zap.L().Debug("region named",
			zap.Int("region", r.ID),
			zap.String("name", r.Name),
			zap.Float64("population", r.Population))
	}

	return &RegionsResult{Bands: bands, PopAgg: popAgg, Mask: mask, Regions: regs}, nil
}

// ScoreResult carries POIs and the final suitability rasters.
type ScoreResult struct {
	POIs     []overpass.POI
	POIBand  *raster.Band
	Breaks   []float64
	Total    *raster.Band
	Suitable *raster.Band
}

// ScoreRegions fetches POIs per region, classifies their density, and
// combines all weight bands into the suitability mask.
func (p *Pipeline) ScoreRegions(ctx context.Context, rr *RegionsResult) (*ScoreResult, error) {
	pois, err := p.fetchPOIs(ctx, rr.Regions)
	if err != nil {
		return nil, err
	}

	grid := rr.Bands.Grid
	pts := make([]raster.Point, 0, len(pois))
	for _, poi := range pois {
		x, y, err := raster.ToLAEA(poi.Lon, poi.Lat)
		if err != nil {
			continue
		}
		pts = append(pts, raster.Point{X: x, Y: y})
	}

	counts, dropped := raster.CountPoints(grid, pts, "poi_count")
	if dropped > 0 {
		zap.L().Debug("pois outside grid dropped", zap.Int("dropped", dropped))
	}

	// Classify POI density only where POIs exist; empty cells score zero.
	positive := make([]float64, 0)
	for _, v := range counts.Values() {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	var breaks []float64
	poiClass := raster.NewBand(grid, "poi_class")
	if len(positive) > 0 {
		breaks, err = raster.FisherJenks(positive, p.cfg.Score.POIClasses)
		if err != nil {
			// Degenerate densities (a single distinct count) have no natural
			// breaks. Any cell with POIs then scores one class above empty.
			zap.L().Debug("poi densities degenerate, using single class", zap.Error(err))
			breaks = []float64{0}
		}
		poiClass = raster.ClassifyBreaks(counts, breaks, "poi_class")
	} else {
		for row := 0; row < grid.Rows; row++ {
			for col := 0; col < grid.Cols; col++ {
				poiClass.Set(col, row, 0)
			}
		}
	}

	women := raster.Reclassify(rr.Bands.Women, census.WomenWeights(), "women_weight")
	age := raster.Reclassify(rr.Bands.Age, census.AgeWeights(), "age_weight")
	households := raster.Reclassify(rr.Bands.Households, census.HouseholdWeights(), "household_weight")
	popWeight := raster.Reclassify(rr.Bands.Pop, census.PopWeights(), "pop_weight")

	total, err := raster.Sum("score", women, age, households, popWeight, poiClass)
	if err != nil {
		return nil, err
	}
	suitable := raster.GreaterThan(total, p.cfg.Score.SuitabilityThreshold, "suitable")

	set, _, _ := raster.MaskStats(suitable)
	zap.L().Info("suitability scored",
		zap.Int("pois", len(pois)),
		zap.Int("suitable_cells", set))

	return &ScoreResult{
		POIs:     pois,
		POIBand:  counts,
		Breaks:   breaks,
		Total:    total,
		Suitable: suitable,
	}, nil
}

// fetchPOIs queries each region's bounding box and deduplicates results
// where boxes overlap.
func (p *Pipeline) fetchPOIs(ctx context.Context, regs []*regions.Region) ([]overpass.POI, error) {
	seen := make(map[string]bool)
	var all []overpass.POI

	for _, r := range regs {
		bbox, err := regionBBox(r)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: bbox for region %d", r.ID)
		}

		// An exhausted Overpass query yields an empty result for the region,
		// not a failed run.
		pois, err := p.poi.POIs(ctx, bbox, p.cfg.Overpass.Key)
		if err != nil {
			zap.L().Warn("poi query failed, region scored without pois",
				zap.String("region", r.Name),
				zap.Error(err))
			continue
		}
		zap.L().Debug("pois fetched",
			zap.String("region", r.Name),
			zap.Int("count", len(pois)))

		for _, poi := range pois {
			key := poi.Type + "/" + strconv.FormatInt(poi.ID, 10)
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, poi)
		}
	}
	return all, nil
}

// regionBBox projects the polygon's corner extent back to WGS84. Sampling
// all four corners absorbs the slight rotation the projection introduces.
func regionBBox(r *regions.Region) (overpass.BBox, error) {
	if r.Polygon == nil {
		return overpass.BBox{}, eris.New("region has no outline")
	}
	b := r.Polygon.Bounds()
	minX, minY := b.Min(0), b.Min(1)
	maxX, maxY := b.Max(0), b.Max(1)

	corners := [4][2]float64{
		{minX, minY}, {maxX, minY}, {minX, maxY}, {maxX, maxY},
	}
	box := overpass.BBox{South: math.Inf(1), West: math.Inf(1), North: math.Inf(-1), East: math.Inf(-1)}
	for _, c := range corners {
		lon, lat, err := raster.FromLAEA(c[0], c[1])
		if err != nil {
			return overpass.BBox{}, err
		}
		box.South = math.Min(box.South, lat)
		box.North = math.Max(box.North, lat)
		box.West = math.Min(box.West, lon)
		box.East = math.Max(box.East, lon)
	}
	return box, nil
}
