package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteFileProvider keeps files as rows of a single SQLite table.
// Each Write is one upsert statement, so readers see either the old or the new blob.
type SQLiteFileProvider struct {
	db *sql.DB
}

// NewSQLiteFileProvider opens (or creates) the database at dsn. Use ":memory:" for tests.
func NewSQLiteFileProvider(dsn string) (*SQLiteFileProvider, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	connStr := dsn
	if dsn != ":memory:" && !strings.Contains(dsn, "?") {
		connStr = dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	p := &SQLiteFileProvider{db: db}
	if err := p.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return p, nil
}

func (p *SQLiteFileProvider) migrate() error {
	_, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	)`)
	return err
}

// Close releases the database handle.
func (p *SQLiteFileProvider) Close() error {
	return p.db.Close()
}

func (p *SQLiteFileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT data FROM files WHERE path = ?`, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (p *SQLiteFileProvider) Write(ctx context.Context, path string, data []byte) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO files (path, data, updated_at)
		VALUES (?, ?, strftime('%s','now'))
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		path, data)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (p *SQLiteFileProvider) Exists(ctx context.Context, path string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM files WHERE path = ?`, path).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", path, err)
	}
	return true, nil
}

func (p *SQLiteFileProvider) Delete(ctx context.Context, path string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (p *SQLiteFileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT path FROM files WHERE substr(path, 1, length(?)) = ? ORDER BY path`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer func() { _ = rows.Close() }()

	result := []string{}
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		result = append(result, path)
	}
	return result, rows.Err()
}
