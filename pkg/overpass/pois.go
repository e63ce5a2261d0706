package overpass

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gridscout/gridscout/internal/resilience"
)

const cacheService = "overpass"

type overpassResponse struct {
	Elements []struct {
		Type   string  `json:"type"`
		ID     int64   `json:"id"`
		Lat    float64 `json:"lat"`
		Lon    float64 `json:"lon"`
		Center *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"center"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// POIs returns every node and way tagged with key inside bbox. Ways come
// back with their center coordinate. Results are cached per query.
func (c *client) POIs(ctx context.Context, bbox BBox, key string) ([]POI, error) {
	if key == "" {
		return nil, eris.New("overpass: tag key is required")
	}
	if bbox.South >= bbox.North || bbox.West >= bbox.East {
		return nil, eris.Errorf("overpass: invalid bbox %+v", bbox)
	}

	query := buildQuery(bbox, key, c.queryTimeout)
	cacheKey := queryCacheKey(query)

	if pois, ok := c.checkCache(ctx, cacheKey); ok {
		return pois, nil
	}

	// Breaker outside the retry loop: a dead endpoint fails fast for the
	// remaining regions instead of burning a retry cycle per query.
	pois, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]POI, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]POI, error) {
			return c.queryOnce(ctx, query, key)
		})
	})
	if err != nil {
		return nil, err
	}

	c.storeCache(ctx, cacheKey, pois)
	return pois, nil
}

// buildQuery assembles the Overpass QL for a tag key inside a bbox.
func buildQuery(bbox BBox, key string, timeoutSecs int) string {
	box := fmt.Sprintf("%f,%f,%f,%f", bbox.South, bbox.West, bbox.North, bbox.East)
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n", timeoutSecs)
	b.WriteString("(\n")
	fmt.Fprintf(&b, "  node[%q](%s);\n", key, box)
	fmt.Fprintf(&b, "  way[%q](%s);\n", key, box)
	b.WriteString(");\n")
	b.WriteString("out center;\n")
	return b.String()
}

func (c *client) queryOnce(ctx context.Context, query, key string) ([]POI, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit wait")
	}

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "overpass: query request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "overpass: read response"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("overpass: query returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var or overpassResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return nil, eris.Wrap(err, "overpass: decode response")
	}

	pois := make([]POI, 0, len(or.Elements))
	for _, el := range or.Elements {
		p := POI{
			ID:       el.ID,
			Type:     el.Type,
			Lat:      el.Lat,
			Lon:      el.Lon,
			Name:     el.Tags["name"],
			Category: el.Tags[key],
		}
		if el.Center != nil {
			p.Lat = el.Center.Lat
			p.Lon = el.Center.Lon
		}
		if p.Lat == 0 && p.Lon == 0 {
			// Ways without a computed center carry no usable location.
			continue
		}
		pois = append(pois, p)
	}

	zap.L().Debug("overpass query complete",
		zap.String("key", key),
		zap.Int("elements", len(or.Elements)),
		zap.Int("pois", len(pois)),
	)
	return pois, nil
}

func queryCacheKey(query string) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%x", h)
}

func (c *client) checkCache(ctx context.Context, key string) ([]POI, bool) {
	if c.cache == nil {
		return nil, false
	}
	payload, ok, err := c.cache.Get(ctx, cacheService, key)
	if err != nil || !ok {
		if err != nil {
			zap.L().Debug("overpass cache lookup failed", zap.Error(err))
		}
		return nil, false
	}
	var pois []POI
	if err := json.Unmarshal(payload, &pois); err != nil {
		zap.L().Debug("overpass cache entry corrupt", zap.Error(err))
		return nil, false
	}
	zap.L().Debug("overpass cache hit", zap.String("key", key[:12]), zap.Int("pois", len(pois)))
	return pois, true
}

func (c *client) storeCache(ctx context.Context, key string, pois []POI) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(pois)
	if err != nil {
		zap.L().Debug("overpass cache marshal failed", zap.Error(err))
		return
	}
	if err := c.cache.Put(ctx, cacheService, key, payload); err != nil {
		zap.L().Debug("overpass cache store failed", zap.Error(err))
	}
}
