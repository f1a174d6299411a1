package downgrade

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationTable = "schema_migrations"

// Run is one recorded worker run.
type Run struct {
	ResourceID string
	Thread     string
	BegunAt    time.Time
	FinishedAt time.Time // zero while unfinished
}

// Finished reports whether the run recorded an end marker.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// Ledger persists engine worker begin/end markers per resource id. A run that
// begins and never finishes usually means the process died inside the
// engine; Policy uses the count of such runs as a crash guard.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// OpenLedger opens (or creates) the ledger database at path. Use ":memory:"
// for a process-local ledger.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure ledger: %w", err)
	}
	if err := applyMigrations(db, migrationFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// SetClock replaces the ledger's time source.
func (l *Ledger) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// RecordBegin notes that a worker thread started running for resourceID.
func (l *Ledger) RecordBegin(ctx context.Context, resourceID, thread string) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO worker_runs (resource_id, thread, begun_at) VALUES (?, ?, ?)",
		resourceID, thread, l.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record begin %s: %w", resourceID, err)
	}
	return nil
}

// RecordFinish closes the most recent open run of thread for resourceID.
// A finish without a matching begin is ignored.
func (l *Ledger) RecordFinish(ctx context.Context, resourceID, thread string) error {
	_, err := l.db.ExecContext(ctx, `
UPDATE worker_runs SET finished_at = ?
WHERE id = (
    SELECT id FROM worker_runs
    WHERE resource_id = ? AND thread = ? AND finished_at IS NULL
    ORDER BY id DESC LIMIT 1
)`, l.now().UTC().UnixMilli(), resourceID, thread)
	if err != nil {
		return fmt.Errorf("record finish %s: %w", resourceID, err)
	}
	return nil
}

// Unfinished counts runs for resourceID that never recorded an end marker.
func (l *Ledger) Unfinished(ctx context.Context, resourceID string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM worker_runs WHERE resource_id = ? AND finished_at IS NULL",
		resourceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unfinished %s: %w", resourceID, err)
	}
	return n, nil
}

// Runs lists every run recorded for resourceID, oldest first.
func (l *Ledger) Runs(ctx context.Context, resourceID string) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT resource_id, thread, begun_at, finished_at FROM worker_runs WHERE resource_id = ? ORDER BY id",
		resourceID)
	if err != nil {
		return nil, fmt.Errorf("list runs %s: %w", resourceID, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			begun    int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ResourceID, &r.Thread, &begun, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.BegunAt = time.UnixMilli(begun).UTC()
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Forget deletes every run recorded for resourceID.
func (l *Ledger) Forget(ctx context.Context, resourceID string) error {
	if _, err := l.db.ExecContext(ctx, "DELETE FROM worker_runs WHERE resource_id = ?", resourceID); err != nil {
		return fmt.Errorf("forget %s: %w", resourceID, err)
	}
	return nil
}

// applyMigrations executes embedded migrations from root at most once per file.
func applyMigrations(db *sql.DB, migrations fs.FS, root string) error {
	entries, err := fs.ReadDir(migrations, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := db.QueryRow("SELECT 1 FROM "+migrationTable+" WHERE name = ?", file).Scan(&found)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrations, path.Join(root, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		up := extractUp(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec("INSERT INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
			file, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func extractUp(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	i := strings.Index(content, up)
	if i == -1 {
		return content
	}
	content = content[i+len(up):]
	if j := strings.Index(content, down); j != -1 {
		content = content[:j]
	}
	return content
}
