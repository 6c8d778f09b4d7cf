// Package sqlite persists summary records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Store writes summary records, keyed by their deterministic ID so reruns
// overwrite rather than duplicate.
// It implements pipeline.BatchLoader.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and applies migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := New(db, logger)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

// New wraps an open database. Call Migrate before use.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// LoadBatch upserts records in one transaction and updates the per-run count.
func (s *Store) LoadBatch(ctx context.Context, records []domain.SummaryRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin summary tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO summaries (id, run_id, province, source, metric, period, value, unit, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			value = excluded.value,
			unit = excluded.unit,
			processed_at = excluded.processed_at
	`)
	if err != nil {
		return fmt.Errorf("prepare summary upsert: %w", err)
	}
	defer stmt.Close()

	runs := make(map[string]int)
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.RunID, r.Province, string(r.Source), r.Metric, r.Period, r.Value, r.Unit, r.ProcessedAt.UTC()); err != nil {
			return fmt.Errorf("upsert summary %s: %w", r.ID, err)
		}
		runs[r.RunID]++
	}
	for runID, n := range runs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO runs (run_id, started_at, records) VALUES (?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET records = records + excluded.records
		`, runID, domain.Now().UTC(), n); err != nil {
			return fmt.Errorf("record run %s: %w", runID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summaries: %w", err)
	}
	s.logger.Debug("summaries stored", "count", len(records))
	return nil
}

// Summaries returns the stored records of one province and source ordered
// by metric and period.
func (s *Store) Summaries(ctx context.Context, province string, src domain.Source) ([]domain.SummaryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, province, source, metric, period, value, COALESCE(unit, ''), processed_at
		FROM summaries
		WHERE province = ? AND source = ?
		ORDER BY metric, period
	`, province, string(src))
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []domain.SummaryRecord
	for rows.Next() {
		var (
			r         domain.SummaryRecord
			source    string
			processed time.Time
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Province, &source, &r.Metric, &r.Period, &r.Value, &r.Unit, &processed); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		r.Source = domain.Source(source)
		r.ProcessedAt = processed
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunRecords reports how many records a run wrote.
func (s *Store) RunRecords(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT records FROM runs WHERE run_id = ?", runID).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query run %s: %w", runID, err)
	}
	return n, nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
