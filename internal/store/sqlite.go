package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/gridscout/gridscout/internal/census"
	"github.com/gridscout/gridscout/internal/regions"
	"github.com/gridscout/gridscout/pkg/overpass"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS census_cells (
	x          REAL NOT NULL,
	y          REAL NOT NULL,
	grid_id    TEXT,
	pop        INTEGER NOT NULL DEFAULT 0,
	women      INTEGER NOT NULL DEFAULT 0,
	age        INTEGER NOT NULL DEFAULT 0,
	households INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (x, y)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS regions (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	region_id    INTEGER NOT NULL,
	name         TEXT,
	cells        INTEGER NOT NULL,
	population   REAL NOT NULL,
	centroid_x   REAL NOT NULL,
	centroid_y   REAL NOT NULL,
	centroid_lon REAL,
	centroid_lat REAL,
	geometry     TEXT,
	PRIMARY KEY (run_id, region_id)
);

CREATE TABLE IF NOT EXISTS pois (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	osm_id   INTEGER NOT NULL,
	osm_type TEXT NOT NULL,
	lat      REAL NOT NULL,
	lon      REAL NOT NULL,
	name     TEXT,
	category TEXT,
	PRIMARY KEY (run_id, osm_type, osm_id)
);

CREATE TABLE IF NOT EXISTS api_cache (
	service    TEXT NOT NULL,
	key        TEXT NOT NULL,
	payload    BLOB NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL,
	PRIMARY KEY (service, key)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
CREATE INDEX IF NOT EXISTS idx_pois_run_id ON pois(run_id);
CREATE INDEX IF NOT EXISTS idx_api_cache_expires_at ON api_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertRecords(ctx context.Context, recs []census.Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert cells")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO census_cells (x, y, grid_id, pop, women, age, households)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (x, y) DO UPDATE SET
			grid_id = excluded.grid_id,
			pop = excluded.pop,
			women = excluded.women,
			age = excluded.age,
			households = excluded.households`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert cells")
	}
	defer stmt.Close() //nolint:errcheck

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.X, rec.Y, rec.GridID,
			rec.Pop, rec.Women, rec.Age, rec.Households); err != nil {
			return eris.Wrap(err, "sqlite: insert cell")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert cells")
}

func (s *SQLiteStore) LoadRecords(ctx context.Context) ([]census.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x, y, grid_id, pop, women, age, households FROM census_cells`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load cells")
	}
	defer rows.Close()

	var recs []census.Record
	for rows.Next() {
		var rec census.Record
		if err := rows.Scan(&rec.X, &rec.Y, &rec.GridID,
			&rec.Pop, &rec.Women, &rec.Age, &rec.Households); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: load cells iterate")
}

func (s *SQLiteStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM census_cells`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count cells")
}

func (s *SQLiteStore) ClearRecords(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM census_cells`)
	return eris.Wrap(err, "sqlite: clear cells")
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{ID: id, Status: RunStatusQueued, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreatePhase(ctx context.Context, runID string, name string) (*RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, string(PhaseStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert phase for run %s", runID)
	}

	return &RunPhase{ID: id, RunID: runID, Name: name, Status: PhaseStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) CompletePhase(ctx context.Context, phaseID string, result *PhaseResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal phase result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_phases SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete phase %s", phaseID)
	}
	return checkRowsAffected(res, "phase", phaseID)
}

func (s *SQLiteStore) SaveRegions(ctx context.Context, runID string, regs []*regions.Region) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save regions")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM regions WHERE run_id = ?`, runID); err != nil {
		return eris.Wrap(err, "sqlite: clear regions")
	}

	for _, r := range regs {
		geomJSON, err := encodeGeometry(r.Polygon)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO regions
			 (run_id, region_id, name, cells, population, centroid_x, centroid_y, centroid_lon, centroid_lat, geometry)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.ID, r.Name, r.Cells, r.Population,
			r.CentroidX, r.CentroidY, r.CentroidLon, r.CentroidLat, geomJSON,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert region %d", r.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save regions")
}

func (s *SQLiteStore) ListRegions(ctx context.Context, runID string) ([]*regions.Region, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT region_id, name, cells, population, centroid_x, centroid_y, centroid_lon, centroid_lat, geometry
		 FROM regions WHERE run_id = ? ORDER BY region_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list regions")
	}
	defer rows.Close()

	var regs []*regions.Region
	for rows.Next() {
		var r regions.Region
		var geomJSON string
		if err := rows.Scan(&r.ID, &r.Name, &r.Cells, &r.Population,
			&r.CentroidX, &r.CentroidY, &r.CentroidLon, &r.CentroidLat, &geomJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region")
		}
		if r.Polygon, err = decodeGeometry(geomJSON); err != nil {
			return nil, err
		}
		regs = append(regs, &r)
	}
	return regs, eris.Wrap(rows.Err(), "sqlite: list regions iterate")
}

func (s *SQLiteStore) SavePOIs(ctx context.Context, runID string, pois []overpass.POI) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save pois")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM pois WHERE run_id = ?`, runID); err != nil {
		return eris.Wrap(err, "sqlite: clear pois")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO pois (run_id, osm_id, osm_type, lat, lon, name, category)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert pois")
	}
	defer stmt.Close() //nolint:errcheck

	for _, p := range pois {
		if _, err := stmt.ExecContext(ctx, runID, p.ID, p.Type, p.Lat, p.Lon, p.Name, p.Category); err != nil {
			return eris.Wrap(err, "sqlite: insert poi")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save pois")
}

func (s *SQLiteStore) ListPOIs(ctx context.Context, runID string) ([]overpass.POI, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT osm_id, osm_type, lat, lon, name, category FROM pois WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pois")
	}
	defer rows.Close()

	var pois []overpass.POI
	for rows.Next() {
		var p overpass.POI
		if err := rows.Scan(&p.ID, &p.Type, &p.Lat, &p.Lon, &p.Name, &p.Category); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan poi")
		}
		pois = append(pois, p)
	}
	return pois, eris.Wrap(rows.Err(), "sqlite: list pois iterate")
}

func (s *SQLiteStore) GetCachedResponse(ctx context.Context, service, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM api_cache
		 WHERE service = ? AND key = ? AND expires_at > datetime('now')`,
		service, key,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get cached response")
	}
	return payload, true, nil
}

func (s *SQLiteStore) SetCachedResponse(ctx context.Context, service, key string, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_cache (service, key, payload, cached_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (service, key) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at`,
		service, key, payload, now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached response")
}

func (s *SQLiteStore) DeleteExpiredResponses(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired responses")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if resultJSON.Valid {
		r.Result = &RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
