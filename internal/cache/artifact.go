package cache

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"clydepm/internal/cachekey"
	"clydepm/internal/clyerr"
)

// ArtifactEntry is a cached link step's output: the primary artifact
// (library or executable) plus any files it exports alongside it, such
// as a public header directory copied out for dependents to compile
// against.
type ArtifactEntry struct {
	Key             cachekey.Key
	PrimaryName     string
	AdditionalFiles map[string][]byte // relative path -> content
}

// ArtifactCache stores whole link-step outputs as gzip-compressed tar
// bundles, one blob per ArtifactKey.
type ArtifactCache struct {
	store *blobStore
	index *Index
}

// NewArtifactCache returns an ArtifactCache rooted at root/artifacts.
func NewArtifactCache(root string, index *Index) *ArtifactCache {
	return &ArtifactCache{store: newBlobStore(root + "/artifacts"), index: index}
}

func (c *ArtifactCache) Has(key cachekey.Key) bool {
	return c.store.has(key)
}

// Put bundles primaryPath and any additional files into a tar.gz blob
// keyed by key.
func (c *ArtifactCache) Put(key cachekey.Key, packageName, primaryPath string, additional map[string][]byte) error {
	primaryContent, err := os.ReadFile(primaryPath)
	if err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Key: key.String(), Err: err}
	}

	bundle := map[string][]byte{filepath.Base(primaryPath): primaryContent}
	for name, content := range additional {
		bundle[name] = content
	}

	blob, err := bundleTarGz(bundle)
	if err != nil {
		return &clyerr.CacheError{Code: clyerr.WriteFailure, Key: key.String(), Err: err}
	}
	if err := c.store.put(key, blob); err != nil {
		return err
	}
	if c.index != nil {
		_ = c.index.Record(key.String(), "artifact", packageName, int64(len(blob)))
	}
	return nil
}

// Extract unpacks a cached artifact bundle into destDir. Returns false
// on a cache miss. A corrupt bundle is purged and reported as a miss,
// per §7's CorruptEntry recovery rule.
func (c *ArtifactCache) Extract(key cachekey.Key, destDir string) (bool, error) {
	blob, ok, err := c.store.get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := extractTarGz(blob, destDir); err != nil {
		c.store.purge(key)
		return false, nil
	}
	return true, nil
}

func bundleTarGz(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	for _, name := range names {
		content := files[name]
		hdr := &tar.Header{Name: name, Size: int64(len(content)), Mode: 0o644, Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("writing tar header for %s: %w", name, err)
		}
		if _, err := tw.Write(content); err != nil {
			return nil, fmt.Errorf("writing tar content for %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar writer: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// extractTarGz unpacks a tar.gz blob into destDir, rejecting any entry
// whose name would resolve outside destDir. The same guard the store
// package applies to registry tarballs; duplicated here rather than
// shared because the two packages extract into structurally different
// destinations (a content-addressed source tree vs. a caller-chosen
// artifact directory) and depend on each other for nothing else.
func extractTarGz(blob []byte, destDir string) error {
	gzr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gzr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}
		if hdr.Name == "" || strings.HasPrefix(hdr.Name, "/") {
			return fmt.Errorf("attempted path traversal in artifact bundle: %q", hdr.Name)
		}
		clean := filepath.Clean(hdr.Name)
		if clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("attempted path traversal in artifact bundle: %q", hdr.Name)
		}

		target := filepath.Join(destDir, clean)
		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("reading tar content for %s: %w", hdr.Name, err)
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return err
		}
	}
	return nil
}
