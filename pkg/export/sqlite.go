package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	endpoint TEXT,
	status TEXT NOT NULL,
	record_count INTEGER NOT NULL,
	last_page INTEGER NOT NULL,
	total_items INTEGER NOT NULL,
	failed_pages TEXT NOT NULL,
	started_at DATETIME,
	duration_ms INTEGER,
	exported_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	run_id TEXT NOT NULL REFERENCES runs(id),
	seq INTEGER NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// SQLiteSink stores runs and their records in a SQLite database.
// The run status column carries "partial" for interrupted runs.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Name implements Sink.
func (s *SQLiteSink) Name() string {
	return "sqlite"
}

// Export implements Sink. The run row and its records are replaced in one
// transaction.
func (s *SQLiteSink) Export(ctx context.Context, b Batch) (err error) {
	defer func() { observe(s.Name(), len(b.Records), err) }()

	if err := b.validate(); err != nil {
		return err
	}

	failed, err := json.Marshal(metaOf(b).FailedPages)
	if err != nil {
		return fmt.Errorf("marshal failed pages: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, b.RunID); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs
		 (id, endpoint, status, record_count, last_page, total_items, failed_pages, started_at, duration_ms, exported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.RunID, b.Endpoint, b.Status(), len(b.Records), b.LastPage, b.TotalItems,
		string(failed), b.StartedAt.UTC(), b.Duration.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (run_id, seq, data) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range b.Records {
		if _, err := stmt.ExecContext(ctx, b.RunID, i, string(rec)); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunStatus returns the stored status and record count of a run.
func (s *SQLiteSink) RunStatus(ctx context.Context, runID string) (status string, records int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT status, record_count FROM runs WHERE id = ?`, runID).Scan(&status, &records)
	if err != nil {
		return "", 0, fmt.Errorf("query run %s: %w", runID, err)
	}
	return status, records, nil
}

// CountRecords returns the number of stored record rows of a run.
func (s *SQLiteSink) CountRecords(ctx context.Context, runID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
