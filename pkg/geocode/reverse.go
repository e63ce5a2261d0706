package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gridscout/gridscout/internal/resilience"
)

// nominatimResponse is the jsonv2 reverse payload. A lookup that finds
// nothing carries an error string instead of an address.
type nominatimResponse struct {
	Error       string `json:"error"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Address     struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		County       string `json:"county"`
		State        string `json:"state"`
		Country      string `json:"country"`
	} `json:"address"`
}

// Reverse resolves lat/lon to the nearest settlement. A coordinate the
// service cannot place is not an error, the result just comes back
// unmatched. Responses are cached, non-matches included.
func (r *reverser) Reverse(ctx context.Context, lat, lon float64) (*Result, error) {
	key := cacheKey(lat, lon)
	if cached, ok := r.checkCache(ctx, key); ok {
		return cached, nil
	}

	// The breaker sits outside the retry loop: once the service is down for
	// good, later lookups fail fast instead of burning a retry cycle each.
	result, err := resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*Result, error) {
		return resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*Result, error) {
			return r.reverseOnce(ctx, lat, lon)
		})
	})
	if err != nil {
		return nil, err
	}

	r.storeCache(ctx, key, result)
	return result, nil
}

func (r *reverser) reverseOnce(ctx context.Context, lat, lon float64) (*Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit wait")
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("zoom", "10") // settlement level
	if r.email != "" {
		q.Set("email", r.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: reverse request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: read response"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: reverse returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var nr nominatimResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		return nil, eris.Wrap(err, "geocode: decode response")
	}

	if nr.Error != "" {
		zap.L().Debug("reverse geocode: no result",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.String("reason", nr.Error),
		)
		return &Result{Matched: false}, nil
	}

	return &Result{
		Name:        settlementName(nr),
		City:        nr.Address.City,
		County:      nr.Address.County,
		State:       nr.Address.State,
		Country:     nr.Address.Country,
		DisplayName: nr.DisplayName,
		Matched:     true,
	}, nil
}

// settlementName picks the most specific populated-place name available.
func settlementName(nr nominatimResponse) string {
	for _, name := range []string{
		nr.Address.City,
		nr.Address.Town,
		nr.Address.Village,
		nr.Address.Municipality,
		nr.Name,
		nr.Address.County,
	} {
		if name != "" {
			return name
		}
	}
	return nr.DisplayName
}
