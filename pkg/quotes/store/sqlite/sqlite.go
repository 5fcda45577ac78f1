package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/quotes/pkg/quotes/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS files (
	repo TEXT NOT NULL,
	path TEXT NOT NULL,
	local_path TEXT NOT NULL,
	etag TEXT,
	size INTEGER DEFAULT 0,
	fetched_at TEXT NOT NULL,
	PRIMARY KEY(repo, path)
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	total INTEGER NOT NULL,
	sources_json TEXT
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *sqliteStore) GetFile(ctx context.Context, repo, path string) (store.File, bool, error) {
	var (
		f         store.File
		etag      sql.NullString
		fetchedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT repo, path, local_path, etag, size, fetched_at FROM files WHERE repo = ? AND path = ?`,
		repo, path,
	).Scan(&f.Repo, &f.Path, &f.LocalPath, &etag, &f.Size, &fetchedAt)
	if err == sql.ErrNoRows {
		return store.File{}, false, nil
	}
	if err != nil {
		return store.File{}, false, err
	}
	f.ETag = etag.String
	f.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetchedAt)
	return f, true, nil
}

func (s *sqliteStore) PutFile(ctx context.Context, f store.File) error {
	if f.FetchedAt.IsZero() {
		f.FetchedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO files(repo, path, local_path, etag, size, fetched_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(repo, path) DO UPDATE SET
	local_path = excluded.local_path,
	etag = excluded.etag,
	size = excluded.size,
	fetched_at = excluded.fetched_at`,
		f.Repo, f.Path, f.LocalPath, f.ETag, f.Size, f.FetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put file %s/%s: %w", f.Repo, f.Path, err)
	}
	return nil
}

func (s *sqliteStore) ListFiles(ctx context.Context, repo string) ([]store.File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT repo, path, local_path, etag, size, fetched_at FROM files WHERE repo = ? ORDER BY path`, repo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []store.File
	for rows.Next() {
		var (
			f         store.File
			etag      sql.NullString
			fetchedAt string
		)
		if err := rows.Scan(&f.Repo, &f.Path, &f.LocalPath, &etag, &f.Size, &fetchedAt); err != nil {
			return nil, err
		}
		f.ETag = etag.String
		f.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetchedAt)
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *sqliteStore) RecordRun(ctx context.Context, r store.Run) error {
	sources, err := json.Marshal(r.Sources)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(id, started_at, finished_at, total, sources_json) VALUES(?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano), r.Total, string(sources))
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

func (s *sqliteStore) RecentRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, total, sources_json FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var (
			r                 store.Run
			started, finished string
			sources           sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Total, &sources); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &r.Sources); err != nil {
				return nil, fmt.Errorf("decode sources for run %s: %w", r.ID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
