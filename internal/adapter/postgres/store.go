// Package postgres persists analysis results to PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/couchcryptid/climate-series-service/internal/pipeline"
	"github.com/lib/pq"
)

// ErrNotFound is returned when no stored run matches.
var ErrNotFound = pipeline.ErrResultNotFound

const rowColumns = 7

// Store keeps one analysis_runs row per result, with the full result as
// JSON, and one analysis_rows row per (image, feature, band) statistic.
// It implements pipeline.ResultLoader.
type Store struct {
	db        *sql.DB
	batchSize int
}

// Open connects to PostgreSQL, waits for it to accept connections, and
// creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	s := New(db)
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

// New wraps an open database without migrating it.
func New(db *sql.DB) *Store {
	return &Store{db: db, batchSize: 500}
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analysis_runs (
			run_id       UUID         PRIMARY KEY,
			kind         VARCHAR(32)  NOT NULL,
			region_id    CHAR(64)     NOT NULL,
			range_start  TIMESTAMPTZ  NOT NULL,
			range_end    TIMESTAMPTZ  NOT NULL,
			statistic    VARCHAR(16)  NOT NULL,
			variables    TEXT[]       NOT NULL,
			completed_at TIMESTAMPTZ  NOT NULL,
			result       JSONB        NOT NULL
		);

		CREATE TABLE IF NOT EXISTS analysis_rows (
			run_id     UUID         NOT NULL REFERENCES analysis_runs(run_id) ON DELETE CASCADE,
			period     CHAR(7)      NOT NULL,
			date       TIMESTAMPTZ  NOT NULL,
			image_id   TEXT         NOT NULL,
			feature_id TEXT         NOT NULL,
			band       VARCHAR(32)  NOT NULL,
			value      DOUBLE PRECISION,
			PRIMARY KEY (run_id, image_id, feature_id, band)
		);

		CREATE INDEX IF NOT EXISTS idx_runs_region    ON analysis_runs(region_id, kind);
		CREATE INDEX IF NOT EXISTS idx_rows_feature   ON analysis_rows(feature_id, band, date);
	`)
	return err
}

// Name identifies the sink in logs and metrics.
func (s *Store) Name() string { return "postgres" }

// LoadResult stores a result and its rows in one transaction. Storing the
// same run twice is a no-op.
func (s *Store) LoadResult(ctx context.Context, r pipeline.Result) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: encode result: %w", err)
	}
	variables := make([]string, len(r.Variables))
	for i, v := range r.Variables {
		variables[i] = string(v)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO analysis_runs (run_id, kind, region_id, range_start, range_end, statistic, variables, completed_at, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO NOTHING
	`, r.RunID, string(r.Kind), r.RegionID, r.Range.Start, r.Range.End, r.Statistic, pq.Array(variables), r.CompletedAt, doc)
	if err != nil {
		return fmt.Errorf("postgres: insert run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	args := rowArgs(r.RunID, r.Rows)
	per := s.batchSize * rowColumns
	for start := 0; start < len(args); start += per {
		end := min(start+per, len(args))
		if _, err := tx.ExecContext(ctx, insertRowsQuery((end-start)/rowColumns), args[start:end]...); err != nil {
			return fmt.Errorf("postgres: insert rows: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// rowArgs flattens rows into insert arguments, one tuple per defined or
// undefined band value, in band order.
func rowArgs(runID string, rows []domain.StatRow) []any {
	var args []any
	for _, row := range rows {
		bands := make([]domain.Band, 0, len(row.Values))
		for b := range row.Values {
			bands = append(bands, b)
		}
		slices.Sort(bands)
		for _, b := range bands {
			var value sql.NullFloat64
			if v := row.Values[b]; v != nil {
				value = sql.NullFloat64{Float64: *v, Valid: true}
			}
			args = append(args, runID, row.Period.String(), row.Date, row.ImageID, row.FeatureID, string(b), value)
		}
	}
	return args
}

func insertRowsQuery(n int) string {
	values := make([]string, n)
	for i := range values {
		base := i * rowColumns
		values[i] = fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
	}
	return fmt.Sprintf(`
		INSERT INTO analysis_rows (run_id, period, date, image_id, feature_id, band, value)
		VALUES %s
		ON CONFLICT DO NOTHING
	`, strings.Join(values, ","))
}

// FetchRun returns a stored result.
func (s *Store) FetchRun(ctx context.Context, runID string) (pipeline.Result, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT result FROM analysis_runs WHERE run_id = $1`, runID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.Result{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("postgres: fetch run: %w", err)
	}
	var r pipeline.Result
	if err := json.Unmarshal(doc, &r); err != nil {
		return pipeline.Result{}, fmt.Errorf("postgres: decode run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]pipeline.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, kind, region_id, variables, completed_at
		FROM analysis_runs
		ORDER BY completed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var out []pipeline.RunSummary
	for rows.Next() {
		var r pipeline.RunSummary
		if err := rows.Scan(&r.RunID, &r.Kind, &r.RegionID, pq.Array(&r.Variables), &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
