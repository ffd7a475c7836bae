package cache

import (
	"os"
	"path/filepath"

	"clydepm/internal/cachekey"
	"clydepm/internal/clyerr"
)

// blobStore is the shared content-addressed layer both cache tiers write
// through. Atomic per teacher's FileCache.Put: write to a temp path
// beside the destination, then os.Rename onto it.
type blobStore struct {
	root string
}

func newBlobStore(root string) *blobStore {
	return &blobStore{root: root}
}

func (b *blobStore) path(key cachekey.Key) string {
	k := key.String()
	if len(k) < 2 {
		return filepath.Join(b.root, k)
	}
	return filepath.Join(b.root, k[:2], k)
}

func (b *blobStore) has(key cachekey.Key) bool {
	_, err := os.Stat(b.path(key))
	return err == nil
}

func (b *blobStore) get(key cachekey.Key) ([]byte, bool, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, &clyerr.CacheError{Code: clyerr.ReadFailure, Key: key.String(), Err: err}
	}
	return data, true, nil
}

func (b *blobStore) put(key cachekey.Key, data []byte) error {
	dest := b.path(key)
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Key: key.String(), Err: err}
	}

	tmp, err := os.CreateTemp(parent, "tmp-blob-*")
	if err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Key: key.String(), Err: err}
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
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Key: key.String(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Key: key.String(), Err: err}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Key: key.String(), Err: err}
	}
	committed = true
	return nil
}

// purge removes a corrupt entry so it is treated as a miss on the next
// lookup, per §7's CorruptEntry recovery rule.
func (b *blobStore) purge(key cachekey.Key) {
	_ = os.Remove(b.path(key))
}
