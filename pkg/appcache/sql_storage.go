package appcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS caches (
    name       TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
    cache     TEXT    NOT NULL,
    key       TEXT    NOT NULL,
    url       TEXT    NOT NULL,
    status    INTEGER NOT NULL,
    header    TEXT    NOT NULL,
    body      BLOB,
    stored_at INTEGER NOT NULL,
    PRIMARY KEY (cache, key)
);
`

// SQLStorage keeps caches in a SQLite database.
type SQLStorage struct {
	db *sql.DB
}

// OpenSQLStorage opens (or creates) the database at path. Use ":memory:"
// for a throwaway store.
func OpenSQLStorage(path string) (*SQLStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error: cannot open cache database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("error: cannot configure cache database: %w", err)
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error: cannot create cache schema: %w", err)
	}
	return &SQLStorage{db: db}, nil
}

// Open implements Storage.
func (s *SQLStorage) Open(ctx context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, errors.New("empty cache name")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO caches (name, created_at) VALUES (?, ?)`,
		name, time.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("error: failed to create cache %s: %w", name, err)
	}
	return &sqlCache{db: s.db, name: name}, nil
}

// Has implements Storage.
func (s *SQLStorage) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM caches WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Keys implements Storage.
func (s *SQLStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM caches ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("error: failed to list caches: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete implements Storage.
func (s *SQLStorage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE cache = ?`, name); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close implements Storage.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

type sqlCache struct {
	db   *sql.DB
	name string
}

func (c *sqlCache) Name() string { return c.name }

func (c *sqlCache) Match(ctx context.Context, key string) (*Entry, error) {
	var (
		e        = Entry{Key: key}
		header   string
		storedAt int64
	)
	err := c.db.QueryRowContext(ctx, `
        SELECT url, status, header, body, stored_at
        FROM entries
        WHERE cache = ? AND key = ?
    `, c.name, key).Scan(&e.URL, &e.Status, &header, &e.Body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error: failed to query cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		return nil, fmt.Errorf("corrupt header for %s: %w", key, err)
	}
	e.StoredAt = time.Unix(0, storedAt).UTC()
	return &e, nil
}

func (c *sqlCache) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT key FROM entries WHERE cache = ? ORDER BY stored_at, rowid`, c.name)
	if err != nil {
		return nil, fmt.Errorf("error: failed to list cache entries: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PutAll writes every entry in one transaction.
func (c *sqlCache) PutAll(ctx context.Context, entries []*Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The cache row may have been swept since Open.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO caches (name, created_at) VALUES (?, ?)`,
		c.name, time.Now().UnixNano()); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
        INSERT OR REPLACE INTO entries (cache, key, url, status, header, body, stored_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, e := range entries {
		header, err := json.Marshal(e.Header)
		if err != nil {
			return err
		}
		storedAt := e.StoredAt
		if storedAt.IsZero() {
			storedAt = now.Add(time.Duration(i))
		}
		body := e.Body
		if body == nil {
			body = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, c.name, e.Key, e.URL, e.Status, string(header), body, storedAt.UnixNano()); err != nil {
			return fmt.Errorf("error: failed to store %s: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

func (c *sqlCache) Delete(ctx context.Context, key string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE cache = ? AND key = ?`, c.name, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

var _ Storage = (*SQLStorage)(nil)
