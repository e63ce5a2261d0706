// Package geocode resolves coordinates to place names via a
// Nominatim-compatible reverse geocoding API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/gridscout/gridscout/internal/resilience"
)

// Client reverse-geocodes a WGS84 coordinate.
type Client interface {
	// Reverse resolves lat/lon to the nearest settlement.
	Reverse(ctx context.Context, lat, lon float64) (*Result, error)
}

// Result holds the reverse geocoding output for a coordinate.
type Result struct {
	Name        string `json:"name"`
	City        string `json:"city"`
	County      string `json:"county"`
	State       string `json:"state"`
	Country     string `json:"country"`
	DisplayName string `json:"display_name"`
	Matched     bool   `json:"matched"`
}

// Cache stores raw API responses keyed per service. The store package
// provides the persistent implementation.
type Cache interface {
	Get(ctx context.Context, service, key string) ([]byte, bool, error)
	Put(ctx context.Context, service, key string, payload []byte) error
}

// Option configures the reverse geocoder.
type Option func(*reverser)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *reverser) {
		r.httpClient = hc
	}
}

// WithBaseURL points the client at a different Nominatim instance. Empty
// keeps the default.
func WithBaseURL(u string) Option {
	return func(r *reverser) {
		if u != "" {
			r.baseURL = u
		}
	}
}

// WithEmail attaches a contact address to every request, as the public
// instance's usage policy asks for.
func WithEmail(email string) Option {
	return func(r *reverser) {
		r.email = email
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(r *reverser) {
		r.userAgent = ua
	}
}

// WithRateLimit sets the requests-per-second limit. The public instance
// allows at most 1 req/s. Non-positive keeps the default.
func WithRateLimit(rps float64) Option {
	return func(r *reverser) {
		if rps <= 0 {
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxAttempts sets how many times a failed lookup is tried. Non-positive
// keeps the default.
func WithMaxAttempts(n int) Option {
	return func(r *reverser) {
		if n > 0 {
			r.retry = r.retry.WithAttempts(n)
		}
	}
}

// WithCache enables persistent response caching.
func WithCache(c Cache) Option {
	return func(r *reverser) {
		r.cache = c
	}
}

type reverser struct {
	httpClient *http.Client
	baseURL    string
	email      string
	userAgent  string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
	cache      Cache
}

// NewClient creates a reverse geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("nominatim", "reverse")

	r := &reverser{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://nominatim.openstreetmap.org",
		userAgent:  "gridscout/1.0",
		limiter:    rate.NewLimiter(1, 1),
		retry:      retry,
		breaker:    resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
