// Package store persists census cells, pipeline runs, derived regions, POIs,
// and cached API responses in SQLite or Postgres.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gridscout/gridscout/internal/census"
	"github.com/gridscout/gridscout/internal/regions"
	"github.com/gridscout/gridscout/pkg/overpass"
)

// ErrNotFound marks lookups of rows that do not exist.
var ErrNotFound = eris.New("not found")

// IsNotFound reports whether err stems from a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// RunStatus tracks the lifecycle of a pipeline run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// PhaseStatus tracks one pipeline phase within a run.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// Run is one execution of the suitability pipeline.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult summarizes a completed run.
type RunResult struct {
	Regions         int     `json:"regions"`
	POIs            int     `json:"pois"`
	SuitableCells   int     `json:"suitable_cells"`
	TotalPopulation float64 `json:"total_population"`
}

// RunPhase is one named step of a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseResult records the outcome of a phase.
type PhaseResult struct {
	Status PhaseStatus      `json:"status"`
	Error  string           `json:"error,omitempty"`
	Stats  map[string]int64 `json:"stats,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for the suitability pipeline.
type Store interface {
	// Census cells
	InsertRecords(ctx context.Context, recs []census.Record) error
	LoadRecords(ctx context.Context) ([]census.Record, error)
	CountRecords(ctx context.Context) (int, error)
	ClearRecords(ctx context.Context) error

	// Runs
	CreateRun(ctx context.Context) (*Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *RunResult) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *PhaseResult) error

	// Regions
	SaveRegions(ctx context.Context, runID string, regs []*regions.Region) error
	ListRegions(ctx context.Context, runID string) ([]*regions.Region, error)

	// POIs
	SavePOIs(ctx context.Context, runID string, pois []overpass.POI) error
	ListPOIs(ctx context.Context, runID string) ([]overpass.POI, error)

	// API response cache
	GetCachedResponse(ctx context.Context, service, key string) ([]byte, bool, error)
	SetCachedResponse(ctx context.Context, service, key string, payload []byte, ttl time.Duration) error
	DeleteExpiredResponses(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// APICache adapts a Store to the Cache interface the API clients expect,
// fixing the TTL for entries it writes.
type APICache struct {
	store Store
	ttl   time.Duration
}

// NewAPICache wraps store with a write TTL. Non-positive TTLs fall back to
// one day.
func NewAPICache(s Store, ttl time.Duration) *APICache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &APICache{store: s, ttl: ttl}
}

func (c *APICache) Get(ctx context.Context, service, key string) ([]byte, bool, error) {
	return c.store.GetCachedResponse(ctx, service, key)
}

func (c *APICache) Put(ctx context.Context, service, key string, payload []byte) error {
	return c.store.SetCachedResponse(ctx, service, key, payload, c.ttl)
}
