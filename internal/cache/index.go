package cache

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"clydepm/internal/clyerr"
)

// Index is a queryable secondary record of cache entries; the on-disk
// index.json is a snapshot written from it (see WriteManifest). It
// exists for introspection and garbage-collection queries (total size,
// entries by package) that would otherwise require scanning every
// shard directory.
//
// The blob store on disk remains the source of truth: Index is
// best-effort, and deleting it loses only entry metadata. Nothing in
// this package rebuilds it from the store.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if necessary) the SQLite index database at
// root/index.db.
func OpenIndex(root string) (*Index, error) {
	path := filepath.Join(root, "index.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &clyerr.CacheError{Code: clyerr.ReadFailure, Err: fmt.Errorf("opening cache index: %w", err)}
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			key TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			package TEXT NOT NULL DEFAULT '',
			size_bytes INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)
	`); err != nil {
		db.Close()
		return nil, &clyerr.CacheError{Code: clyerr.ReadFailure, Err: fmt.Errorf("creating cache index schema: %w", err)}
	}
	return &Index{db: db}, nil
}

func (idx *Index) Close() error {
	return idx.db.Close()
}

// Record upserts one cache entry's metadata.
func (idx *Index) Record(key, kind, packageName string, sizeBytes int64) error {
	_, err := idx.db.Exec(`
		INSERT INTO entries (key, kind, package, size_bytes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET kind=excluded.kind, package=excluded.package, size_bytes=excluded.size_bytes
	`, key, kind, packageName, sizeBytes)
	if err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Key: key, Err: err}
	}
	return nil
}

// TotalSize returns the sum of size_bytes across every recorded entry.
func (idx *Index) TotalSize() (int64, error) {
	var total sql.NullInt64
	if err := idx.db.QueryRow(`SELECT SUM(size_bytes) FROM entries`).Scan(&total); err != nil {
		return 0, &clyerr.CacheError{Code: clyerr.ReadFailure, Err: err}
	}
	return total.Int64, nil
}

// ByPackage returns the total cached bytes attributed to packageName
// across both cache tiers.
func (idx *Index) ByPackage(packageName string) (int64, error) {
	var total sql.NullInt64
	if err := idx.db.QueryRow(`SELECT SUM(size_bytes) FROM entries WHERE package = ?`, packageName).Scan(&total); err != nil {
		return 0, &clyerr.CacheError{Code: clyerr.ReadFailure, Err: err}
	}
	return total.Int64, nil
}

// Count returns the number of recorded entries of the given kind
// ("object" or "artifact").
func (idx *Index) Count(kind string) (int, error) {
	var n int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE kind = ?`, kind).Scan(&n); err != nil {
		return 0, &clyerr.CacheError{Code: clyerr.ReadFailure, Err: err}
	}
	return n, nil
}

// EntryRecord is one row of the entries table, exported for the
// index.json snapshot writer.
type EntryRecord struct {
	Key        string `json:"key"`
	Kind       string `json:"kind"`
	Package    string `json:"package,omitempty"`
	SizeBytes  int64  `json:"size_bytes"`
	RecordedAt int64  `json:"recorded_at"`
}

// All returns every recorded entry, ordered by key for a stable
// index.json diff.
func (idx *Index) All() ([]EntryRecord, error) {
	rows, err := idx.db.Query(`SELECT key, kind, package, size_bytes, recorded_at FROM entries ORDER BY key`)
	if err != nil {
		return nil, &clyerr.CacheError{Code: clyerr.ReadFailure, Err: err}
	}
	defer rows.Close()

	var out []EntryRecord
	for rows.Next() {
		var r EntryRecord
		if err := rows.Scan(&r.Key, &r.Kind, &r.Package, &r.SizeBytes, &r.RecordedAt); err != nil {
			return nil, &clyerr.CacheError{Code: clyerr.ReadFailure, Err: err}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
