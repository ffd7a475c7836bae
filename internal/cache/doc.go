// Package cache implements the two-tier build cache: an object cache
// keyed by cachekey.ObjectKey holding compiled translation units, and an
// artifact cache keyed by cachekey.ArtifactKey holding linked build
// outputs (static/shared libraries and executables).
//
// Both tiers share one content-addressed blob store on disk, grounded on
// the teacher codebase's FileCache: entries are written to a temporary
// path in the same parent directory and then committed with os.Rename,
// so a crash mid-write can never leave a corrupt entry visible at its
// canonical path, and are sharded by the first 2 hex characters of the
// key to avoid unbounded single-directory fan-out.
//
// A secondary SQLite index (internal/cache/index.go) mirrors the
// blob store's metadata for queryable garbage-collection and
// introspection (total size, bytes by package, entry counts by tier; it
// has no least-recently-used query),
// alongside the on-disk index.json a human or another tool can read
// without a SQL driver.
package cache
