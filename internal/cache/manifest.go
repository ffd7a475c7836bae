package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"clydepm/internal/clyerr"
)

// manifestSnapshot is the on-disk index.json shape: a plain, sorted,
// human-readable mirror of the SQLite index, so a cache directory can be
// inspected or diffed without a SQL driver.
type manifestSnapshot struct {
	Entries []EntryRecord `json:"entries"`
}

// WriteManifest snapshots idx into root/index.json, atomically.
func WriteManifest(root string, idx *Index) error {
	entries, err := idx.All()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(manifestSnapshot{Entries: entries}, "", "  ")
	if err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Err: err}
	}

	dest := filepath.Join(root, "index.json")
	tmp, err := os.CreateTemp(root, "index.json.tmp-*")
	if err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Err: err}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Err: err}
	}
	committed = true
	return nil
}
