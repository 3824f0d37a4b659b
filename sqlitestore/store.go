// Package sqlitestore provides a SQLite-backed chainable.Store.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fortressi/chainable"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS reports (
	run_id      TEXT PRIMARY KEY,
	chain       TEXT NOT NULL,
	state       TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	body        TEXT NOT NULL
)`

// Store persists run reports in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ chainable.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite report store, creating the schema if needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save inserts or replaces a report.
func (s *Store) Save(ctx context.Context, report chainable.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if report.RunID == "" {
		return fmt.Errorf("report has no run id")
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports (run_id, chain, state, started_at, body) VALUES (?, ?, ?, ?, ?)`,
		report.RunID,
		report.Chain,
		report.State,
		toMillis(report.StartedAt),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", report.RunID, err)
	}
	return nil
}

// Load fetches a report by run ID.
func (s *Store) Load(ctx context.Context, runID string) (*chainable.Report, error) {
	var body string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT body FROM reports WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, chainable.ErrReportNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", runID, err)
	}

	var report chainable.Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return &report, nil
}

// List returns every stored report, oldest first.
func (s *Store) List(ctx context.Context) ([]chainable.Report, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT body FROM reports ORDER BY started_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := []chainable.Report{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var report chainable.Report
		if err := json.Unmarshal([]byte(body), &report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	// Millisecond keys can tie where the report timestamps do not.
	chainable.SortReports(reports)
	return reports, nil
}

// Delete removes a report.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM reports WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete report %s: %w", runID, err)
	}
	return nil
}
