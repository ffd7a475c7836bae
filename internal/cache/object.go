package cache

import (
	"encoding/json"
	"os"

	"clydepm/internal/cachekey"
	"clydepm/internal/clyerr"
)

// ObjectEntry is a cached compilation result.
type ObjectEntry struct {
	Key      cachekey.Key
	Object   []byte
	Includes []string
}

type objectMetadata struct {
	Includes []string `json:"includes"`
}

// ObjectCache stores one blob per compiled translation unit plus a small
// JSON sidecar recording the headers discovered during that compile, so
// a later build can seed its dependency-file probe from a cache hit.
type ObjectCache struct {
	store *blobStore
	meta  *blobStore
	index *Index
}

// NewObjectCache returns an ObjectCache rooted at root/objects.
func NewObjectCache(root string, index *Index) *ObjectCache {
	return &ObjectCache{
		store: newBlobStore(root + "/objects/blobs"),
		meta:  newBlobStore(root + "/objects/meta"),
		index: index,
	}
}

// Has reports whether key is present without reading its content.
func (c *ObjectCache) Has(key cachekey.Key) bool {
	return c.store.has(key)
}

// Get returns the cached object and its discovered includes, or a miss.
// A corrupt metadata sidecar downgrades the lookup to a miss and purges
// the offending entry rather than propagating an error.
func (c *ObjectCache) Get(key cachekey.Key) (ObjectEntry, bool, error) {
	obj, ok, err := c.store.get(key)
	if err != nil || !ok {
		return ObjectEntry{}, false, err
	}

	metaBytes, ok, err := c.meta.get(key)
	if err != nil {
		return ObjectEntry{}, false, err
	}
	var includes []string
	if ok {
		var m objectMetadata
		if err := json.Unmarshal(metaBytes, &m); err != nil {
			c.store.purge(key)
			c.meta.purge(key)
			return ObjectEntry{}, false, nil
		}
		includes = m.Includes
	}

	return ObjectEntry{Key: key, Object: obj, Includes: includes}, true, nil
}

// Put stores a compiled object and its discovered includes.
func (c *ObjectCache) Put(entry ObjectEntry) error {
	if err := c.store.put(entry.Key, entry.Object); err != nil {
		return err
	}
	metaBytes, err := json.Marshal(objectMetadata{Includes: entry.Includes})
	if err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Key: entry.Key.String(), Err: err}
	}
	if err := c.meta.put(entry.Key, metaBytes); err != nil {
		return err
	}
	if c.index != nil {
		info, statErr := os.Stat(c.store.path(entry.Key))
		size := int64(len(entry.Object))
		if statErr == nil {
			size = info.Size()
		}
		_ = c.index.Record(entry.Key.String(), "object", "", size)
	}
	return nil
}
