package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

const cacheService = "nominatim"

// cacheKey returns SHA-256 hex of the rounded coordinate. Five decimals is
// about a meter, well under the grid resolution, so nearby centroids still
// share an entry only when they genuinely coincide.
func cacheKey(lat, lon float64) string {
	normalized := fmt.Sprintf("%.5f|%.5f|reverse", lat, lon)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// checkCache returns a cached result, non-matches included, so the caller
// can skip the API entirely.
func (r *reverser) checkCache(ctx context.Context, key string) (*Result, bool) {
	if r.cache == nil {
		return nil, false
	}

	payload, ok, err := r.cache.Get(ctx, cacheService, key)
	if err != nil {
		zap.L().Debug("geocode cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		zap.L().Debug("geocode cache entry corrupt", zap.Error(err))
		return nil, false
	}

	zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.Bool("matched", res.Matched))
	return &res, true
}

// storeCache writes a result through to the cache. Failures are logged and
// swallowed, caching is best effort.
func (r *reverser) storeCache(ctx context.Context, key string, result *Result) {
	if r.cache == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		zap.L().Debug("geocode cache marshal failed", zap.Error(err))
		return
	}
	if err := r.cache.Put(ctx, cacheService, key, payload); err != nil {
		zap.L().Debug("geocode cache store failed", zap.Error(err))
	}
}
