package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/gridscout/gridscout/internal/census"
	"github.com/gridscout/gridscout/internal/regions"
	"github.com/gridscout/gridscout/pkg/overpass"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_cached_response": `SELECT payload FROM api_cache WHERE service = $1 AND key = $2 AND expires_at > now()`,
	"set_cached_response": `INSERT INTO api_cache (service, key, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (service, key) DO UPDATE SET payload = EXCLUDED.payload, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
	"update_run_status":   `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_run":             `SELECT id, status, result, created_at, updated_at FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Tests use this with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS census_cells (
	x          DOUBLE PRECISION NOT NULL,
	y          DOUBLE PRECISION NOT NULL,
	grid_id    TEXT,
	pop        INTEGER NOT NULL DEFAULT 0,
	women      INTEGER NOT NULL DEFAULT 0,
	age        INTEGER NOT NULL DEFAULT 0,
	households INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (x, y)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS regions (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	region_id    INTEGER NOT NULL,
	name         TEXT,
	cells        INTEGER NOT NULL,
	population   DOUBLE PRECISION NOT NULL,
	centroid_x   DOUBLE PRECISION NOT NULL,
	centroid_y   DOUBLE PRECISION NOT NULL,
	centroid_lon DOUBLE PRECISION,
	centroid_lat DOUBLE PRECISION,
	geometry     JSONB,
	PRIMARY KEY (run_id, region_id)
);

CREATE TABLE IF NOT EXISTS pois (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	osm_id   BIGINT NOT NULL,
	osm_type TEXT NOT NULL,
	lat      DOUBLE PRECISION NOT NULL,
	lon      DOUBLE PRECISION NOT NULL,
	name     TEXT,
	category TEXT,
	PRIMARY KEY (run_id, osm_type, osm_id)
);

CREATE TABLE IF NOT EXISTS api_cache (
	service    TEXT NOT NULL,
	key        TEXT NOT NULL,
	payload    BYTEA NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (service, key)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
CREATE INDEX IF NOT EXISTS idx_pois_run_id ON pois(run_id);
CREATE INDEX IF NOT EXISTS idx_api_cache_expires_at ON api_cache(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// InsertRecords bulk-loads cells with the COPY protocol. Re-imports clear
// the table first, so conflicts are not handled here.
func (s *PostgresStore) InsertRecords(ctx context.Context, recs []census.Record) error {
	if len(recs) == 0 {
		return nil
	}

	rows := make([][]any, len(recs))
	for i, rec := range recs {
		rows[i] = []any{rec.X, rec.Y, rec.GridID, rec.Pop, rec.Women, rec.Age, rec.Households}
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"census_cells"},
		[]string{"x", "y", "grid_id", "pop", "women", "age", "households"},
		pgx.CopyFromRows(rows),
	)
	return eris.Wrap(err, "postgres: copy cells")
}

func (s *PostgresStore) LoadRecords(ctx context.Context) ([]census.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT x, y, grid_id, pop, women, age, households FROM census_cells`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load cells")
	}
	defer rows.Close()

	var recs []census.Record
	for rows.Next() {
		var rec census.Record
		if err := rows.Scan(&rec.X, &rec.Y, &rec.GridID,
			&rec.Pop, &rec.Women, &rec.Age, &rec.Households); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cell")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: load cells iterate")
}

func (s *PostgresStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM census_cells`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count cells")
}

func (s *PostgresStore) ClearRecords(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM census_cells`)
	return eris.Wrap(err, "postgres: clear cells")
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		id, string(RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &Run{ID: id, Status: RunStatusQueued, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)

	var r Run
	var resultJSON []byte
	if err := row.Scan(&r.ID, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if len(resultJSON) > 0 {
		r.Result = &RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var resultJSON []byte
		if err := rows.Scan(&r.ID, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(resultJSON) > 0 {
			r.Result = &RunResult{}
			if err := json.Unmarshal(resultJSON, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CreatePhase(ctx context.Context, runID string, name string) (*RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, runID, name, string(PhaseStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert phase for run %s", runID)
	}
	return &RunPhase{ID: id, RunID: runID, Name: name, Status: PhaseStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) CompletePhase(ctx context.Context, phaseID string, result *PhaseResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal phase result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE run_phases SET status = $1, result = $2 WHERE id = $3`,
		string(result.Status), resultJSON, phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete phase %s", phaseID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "phase %s", phaseID)
	}
	return nil
}

func (s *PostgresStore) SaveRegions(ctx context.Context, runID string, regs []*regions.Region) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM regions WHERE run_id = $1`, runID); err != nil {
		return eris.Wrap(err, "postgres: clear regions")
	}

	for _, r := range regs {
		geomJSON, err := encodeGeometry(r.Polygon)
		if err != nil {
			return err
		}
		var geomArg any
		if geomJSON != "" {
			geomArg = []byte(geomJSON)
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO regions
			 (run_id, region_id, name, cells, population, centroid_x, centroid_y, centroid_lon, centroid_lat, geometry)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			runID, r.ID, r.Name, r.Cells, r.Population,
			r.CentroidX, r.CentroidY, r.CentroidLon, r.CentroidLat, geomArg,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert region %d", r.ID)
		}
	}
	return nil
}

func (s *PostgresStore) ListRegions(ctx context.Context, runID string) ([]*regions.Region, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT region_id, name, cells, population, centroid_x, centroid_y, centroid_lon, centroid_lat, geometry
		 FROM regions WHERE run_id = $1 ORDER BY region_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list regions")
	}
	defer rows.Close()

	var regs []*regions.Region
	for rows.Next() {
		var r regions.Region
		var geomJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.Cells, &r.Population,
			&r.CentroidX, &r.CentroidY, &r.CentroidLon, &r.CentroidLat, &geomJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region")
		}
		if r.Polygon, err = decodeGeometry(string(geomJSON)); err != nil {
			return nil, err
		}
		regs = append(regs, &r)
	}
	return regs, eris.Wrap(rows.Err(), "postgres: list regions iterate")
}

func (s *PostgresStore) SavePOIs(ctx context.Context, runID string, pois []overpass.POI) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pois WHERE run_id = $1`, runID); err != nil {
		return eris.Wrap(err, "postgres: clear pois")
	}
	if len(pois) == 0 {
		return nil
	}

	rows := make([][]any, len(pois))
	for i, p := range pois {
		rows[i] = []any{runID, p.ID, p.Type, p.Lat, p.Lon, p.Name, p.Category}
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"pois"},
		[]string{"run_id", "osm_id", "osm_type", "lat", "lon", "name", "category"},
		pgx.CopyFromRows(rows),
	)
	return eris.Wrap(err, "postgres: copy pois")
}

func (s *PostgresStore) ListPOIs(ctx context.Context, runID string) ([]overpass.POI, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT osm_id, osm_type, lat, lon, name, category FROM pois WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pois")
	}
	defer rows.Close()

	var pois []overpass.POI
	for rows.Next() {
		var p overpass.POI
		if err := rows.Scan(&p.ID, &p.Type, &p.Lat, &p.Lon, &p.Name, &p.Category); err != nil {
			return nil, eris.Wrap(err, "postgres: scan poi")
		}
		pois = append(pois, p)
	}
	return pois, eris.Wrap(rows.Err(), "postgres: list pois iterate")
}

func (s *PostgresStore) GetCachedResponse(ctx context.Context, service, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM api_cache WHERE service = $1 AND key = $2 AND expires_at > now()`,
		service, key,
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get cached response")
	}
	return payload, true, nil
}

func (s *PostgresStore) SetCachedResponse(ctx context.Context, service, key string, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_cache (service, key, payload, cached_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (service, key) DO UPDATE SET
			payload = EXCLUDED.payload,
			cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at`,
		service, key, payload, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached response")
}

func (s *PostgresStore) DeleteExpiredResponses(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired responses")
	}
	return int(tag.RowsAffected()), nil
}

