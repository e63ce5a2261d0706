// Package pipeline runs the site suitability workflow end to end: census
// import, rasterization, region detection, POI scoring.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/gridscout/gridscout/internal/config"
	"github.com/gridscout/gridscout/internal/fetcher"
	"github.com/gridscout/gridscout/internal/store"
	"github.com/gridscout/gridscout/pkg/geocode"
	"github.com/gridscout/gridscout/pkg/overpass"
)

// Pipeline wires the data sources, the store, and the raster steps together.
type Pipeline struct {
	cfg   *config.Config
	store store.Store
	fetch fetcher.Fetcher
	geo   geocode.Client
	poi   overpass.Client
}

// Option overrides a pipeline dependency, mainly for tests.
type Option func(*Pipeline)

// WithFetcher replaces the census downloader.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(p *Pipeline) {
		p.fetch = f
	}
}

// WithGeocoder replaces the reverse geocoding client.
func WithGeocoder(c geocode.Client) Option {
	return func(p *Pipeline) {
		p.geo = c
	}
}

// WithOverpass replaces the POI client.
func WithOverpass(c overpass.Client) Option {
	return func(p *Pipeline) {
		p.poi = c
	}
}

// New builds a Pipeline from configuration. API clients cache through the
// store with the configured TTLs.
func New(cfg *config.Config, st store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, store: st}

	if strings.HasPrefix(p.censusURL(), "ftp://") {
		p.fetch = fetcher.NewFTPFetcher(fetcher.FTPOptions{})
	} else {
		p.fetch = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	}

	p.geo = geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithEmail(cfg.Geocode.Email),
		geocode.WithRateLimit(cfg.Geocode.RatePerSecond),
		geocode.WithMaxAttempts(cfg.Geocode.MaxAttempts),
		geocode.WithCache(store.NewAPICache(st, time.Duration(cfg.Geocode.CacheTTLHours)*time.Hour)),
	)

	p.poi = overpass.NewClient(
		overpass.WithBaseURL(cfg.Overpass.BaseURL),
		overpass.WithQueryTimeout(cfg.Overpass.TimeoutSecs),
		overpass.WithRateLimit(cfg.Overpass.RatePerSecond),
		overpass.WithMaxAttempts(cfg.Overpass.MaxAttempts),
		overpass.WithCache(store.NewAPICache(st, time.Duration(cfg.Overpass.CacheTTLHours)*time.Hour)),
	)

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// censusURL prefers the HTTP source and falls back to the FTP mirror.
func (p *Pipeline) censusURL() string {
	if p.cfg.Census.URL != "" {
		return p.cfg.Census.URL
	}
	return p.cfg.Census.FTPURL
}

// fallbackRegionName labels a region the geocoder could not place.
func fallbackRegionName(id int) string {
	return fmt.Sprintf("region-%d", id)
}
