package store

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
	"lukechampine.com/blake3"

	"clydepm/internal/clyerr"
)

// Digest is a BLAKE3 content digest of a materialized source tree,
// hex-encoded.
type Digest string

func (d Digest) String() string { return string(d) }

// Store materializes package source tarballs on disk under a
// content-addressed layout, sharded by the first 2 hex characters of
// the tree digest, mirroring the cache package's sharding scheme.
type Store struct {
	root string
}

// New returns a Store rooted at root. The directory is created lazily on
// first Materialize.
func New(root string) *Store {
	return &Store{root: root}
}

// Has reports whether digest is already materialized.
func (s *Store) Has(digest Digest) bool {
	_, err := os.Stat(s.treePath(digest))
	return err == nil
}

// Path returns the on-disk directory for an already-materialized digest.
// The caller must check Has first; Path does not validate existence.
func (s *Store) Path(digest Digest) string {
	return s.treePath(digest)
}

// Materialize extracts a tar.gz tarball into the content-addressed
// store and returns the digest of its extracted contents. If a tree
// with the same digest already exists, the tarball is not re-extracted.
func (s *Store) Materialize(tarball []byte) (Digest, string, error) {
	files, err := readTarGz(tarball)
	if err != nil {
		return "", "", &clyerr.CacheError{Code: clyerr.CorruptEntry, Err: err}
	}

	digest := hashTree(files)
	dest := s.treePath(digest)
	if _, err := os.Stat(dest); err == nil {
		return digest, dest, nil
	}

	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", "", &clyerr.CacheError{Code: clyerr.WriteFailure, Key: string(digest), Err: err}
	}
	tmp, err := os.MkdirTemp(parent, "tmp-tree-*")
	if err != nil {
		return "", "", &clyerr.CacheError{Code: clyerr.WriteFailure, Key: string(digest), Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	for _, f := range files {
		target := filepath.Join(tmp, f.name)
		if f.isDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", "", &clyerr.CacheError{Code: clyerr.WriteFailure, Key: string(digest), Err: err}
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", "", &clyerr.CacheError{Code: clyerr.WriteFailure, Key: string(digest), Err: err}
		}
		if err := os.WriteFile(target, f.content, 0o644); err != nil {
			return "", "", &clyerr.CacheError{Code: clyerr.WriteFailure, Key: string(digest), Err: err}
		}
	}

	if err := os.Rename(tmp, dest); err != nil {
		return "", "", &clyerr.CacheError{Code: clyerr.WriteFailure, Key: string(digest), Err: err}
	}
	committed = true
	return digest, dest, nil
}

func (s *Store) treePath(digest Digest) string {
	d := string(digest)
	if len(d) < 2 {
		return filepath.Join(s.root, "trees", d)
	}
	return filepath.Join(s.root, "trees", d[:2], d)
}

type treeFile struct {
	name    string
	isDir   bool
	content []byte
}

// readTarGz decompresses and unpacks a gzip-compressed tar archive,
// rejecting any entry whose resolved path would escape the extraction
// root — the same path-traversal guard a naive tar.Reader.extractall
// does not provide on its own.
func readTarGz(tarball []byte) ([]treeFile, error) {
	gzr, err := gzip.NewReader(bytes.NewReader(tarball))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	var files []treeFile
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar entry: %w", err)
		}
		if !isWithinExtractionRoot(hdr.Name) {
			return nil, fmt.Errorf("attempted path traversal in tarball: %q", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			files = append(files, treeFile{name: cleanEntryName(hdr.Name), isDir: true})
		case tar.TypeReg:
			content, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("reading tar entry %q: %w", hdr.Name, err)
			}
			files = append(files, treeFile{name: cleanEntryName(hdr.Name), content: content})
		default:
			// Symlinks, devices and other special entries are not part of
			// a package source tree; skip them rather than fail the
			// whole extraction.
		}
	}
	return files, nil
}

// isWithinExtractionRoot reports whether a tar entry name, once joined
// to an extraction root, stays within that root. Rejects absolute paths
// and any ".." component, regardless of how it is encoded.
func isWithinExtractionRoot(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, `..\`) {
		return false
	}
	return true
}

func cleanEntryName(name string) string {
	return filepath.Clean(name)
}

// hashTree computes a deterministic BLAKE3 digest over a tree's files,
// sorted by name so extraction order never affects the digest.
func hashTree(files []treeFile) Digest {
	sorted := make([]treeFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })

	h := blake3.New(32, nil)
	for _, f := range sorted {
		writeField(h, []byte(f.name))
		if f.isDir {
			writeField(h, []byte{'d'})
			continue
		}
		writeField(h, []byte{'f'})
		writeField(h, f.content)
	}
	return Digest(fmt.Sprintf("%x", h.Sum(nil)))
}

func writeField(w io.Writer, data []byte) {
	length := uint64(len(data))
	prefix := []byte{
		byte(length >> 56), byte(length >> 48), byte(length >> 40), byte(length >> 32),
		byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
	}
	w.Write(prefix)
	w.Write(data)
}
