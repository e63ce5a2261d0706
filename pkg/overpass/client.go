// Package overpass fetches OpenStreetMap points of interest through the
// Overpass API.
package overpass

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/gridscout/gridscout/internal/resilience"
)

// Client queries POIs inside a bounding box.
type Client interface {
	// POIs returns every element tagged with the given key inside bbox.
	POIs(ctx context.Context, bbox BBox, key string) ([]POI, error)
}

// BBox is a WGS84 bounding box in Overpass order.
type BBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// POI is one matched OSM element. Ways carry their center point.
type POI struct {
	ID       int64   `json:"id"`
	Type     string  `json:"type"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Name     string  `json:"name,omitempty"`
	Category string  `json:"category,omitempty"`
}

// Cache stores raw API responses keyed per service.
type Cache interface {
	Get(ctx context.Context, service, key string) ([]byte, bool, error)
	Put(ctx context.Context, service, key string, payload []byte) error
}

// Option configures the Overpass client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at a different Overpass endpoint. Empty
// keeps the default.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithQueryTimeout sets the server-side [timeout:] of generated queries.
func WithQueryTimeout(secs int) Option {
	return func(c *client) {
		if secs > 0 {
			c.queryTimeout = secs
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		c.userAgent = ua
	}
}

// WithRateLimit sets the requests-per-second limit. The public endpoint
// tolerates roughly one query every other second. Non-positive keeps the
// default.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps <= 0 {
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxAttempts sets how many times a failed query is tried. Non-positive
// keeps the default.
func WithMaxAttempts(n int) Option {
	return func(c *client) {
		if n > 0 {
			c.retry = c.retry.WithAttempts(n)
		}
	}
}

// WithCache enables persistent response caching.
func WithCache(cache Cache) Option {
	return func(c *client) {
		c.cache = cache
	}
}

type client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	queryTimeout int
	limiter      *rate.Limiter
	retry        resilience.RetryConfig
	breaker      *resilience.CircuitBreaker
	cache        Cache
}

// NewClient creates an Overpass Client with the given options.
func NewClient(opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("overpass", "pois")

	c := &client{
		httpClient:   &http.Client{Timeout: 90 * time.Second},
		baseURL:      "https://overpass-api.de/api/interpreter",
		userAgent:    "gridscout/1.0",
		queryTimeout: 25,
		limiter:      rate.NewLimiter(0.5, 1),
		retry:        retry,
		breaker:      resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
