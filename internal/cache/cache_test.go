package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clydepm/internal/cachekey"
)

func newTestIndex(t *testing.T, root string) *Index {
	t.Helper()
	idx, err := OpenIndex(root)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestObjectCachePutGetRoundTrip(t *testing.T) {
	root := t.TempDir()
	idx := newTestIndex(t, root)
	oc := NewObjectCache(root, idx)

	key := cachekey.Key("abc123")
	entry := ObjectEntry{Key: key, Object: []byte("object-bytes"), Includes: []string{"add.h", "util.h"}}
	if err := oc.Put(entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := oc.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got.Object) != "object-bytes" {
		t.Errorf("Object = %q", got.Object)
	}
	if len(got.Includes) != 2 {
		t.Errorf("Includes = %v, want 2 entries", got.Includes)
	}
}

func TestObjectCacheMiss(t *testing.T) {
	root := t.TempDir()
	idx := newTestIndex(t, root)
	oc := NewObjectCache(root, idx)

	_, ok, err := oc.Get(cachekey.Key("missing"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected miss for unknown key")
	}
}

func TestArtifactCachePutExtractRoundTrip(t *testing.T) {
	root := t.TempDir()
	idx := newTestIndex(t, root)
	ac := NewArtifactCache(root, idx)

	primary := filepath.Join(t.TempDir(), "libfoo.a")
	if err := os.WriteFile(primary, []byte("ar-archive-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	key := cachekey.Key("artifactkey1")
	if err := ac.Put(key, "foo", primary, map[string][]byte{"include/foo.h": []byte("header")}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	destDir := t.TempDir()
	ok, err := ac.Extract(key, destDir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !ok {
		t.Fatal("expected extract hit")
	}

	libContent, err := os.ReadFile(filepath.Join(destDir, "libfoo.a"))
	if err != nil {
		t.Fatalf("reading extracted artifact: %v", err)
	}
	if string(libContent) != "ar-archive-bytes" {
		t.Errorf("extracted artifact content = %q", libContent)
	}
	headerContent, err := os.ReadFile(filepath.Join(destDir, "include/foo.h"))
	if err != nil {
		t.Fatalf("reading extracted header: %v", err)
	}
	if string(headerContent) != "header" {
		t.Errorf("extracted header content = %q", headerContent)
	}
}

func TestArtifactCacheExtractMiss(t *testing.T) {
	root := t.TempDir()
	idx := newTestIndex(t, root)
	ac := NewArtifactCache(root, idx)

	ok, err := ac.Extract(cachekey.Key("missing"), t.TempDir())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ok {
		t.Error("expected miss for unknown key")
	}
}

func TestExtractTarGzRejectsPathTraversal(t *testing.T) {
	blob, err := bundleTarGz(map[string][]byte{"../../etc/passwd": []byte("evil")})
	if err != nil {
		t.Fatalf("bundleTarGz: %v", err)
	}
	if err := extractTarGz(blob, t.TempDir()); err == nil {
		t.Fatal("expected path-traversal rejection")
	}
}

func TestIndexTotalSizeAndByPackage(t *testing.T) {
	root := t.TempDir()
	idx := newTestIndex(t, root)

	if err := idx.Record("k1", "object", "foo", 100); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := idx.Record("k2", "artifact", "foo", 200); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := idx.Record("k3", "object", "bar", 50); err != nil {
		t.Fatalf("Record: %v", err)
	}

	total, err := idx.TotalSize()
	if err != nil {
		t.Fatalf("TotalSize: %v", err)
	}
	if total != 350 {
		t.Errorf("TotalSize = %d, want 350", total)
	}

	fooSize, err := idx.ByPackage("foo")
	if err != nil {
		t.Fatalf("ByPackage: %v", err)
	}
	if fooSize != 300 {
		t.Errorf("ByPackage(foo) = %d, want 300", fooSize)
	}
}

func TestWriteManifestProducesSortedJSON(t *testing.T) {
	root := t.TempDir()
	idx := newTestIndex(t, root)
	if err := idx.Record("zzz", "object", "foo", 10); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := idx.Record("aaa", "object", "foo", 20); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if err := WriteManifest(root, idx); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "index.json"))
	if err != nil {
		t.Fatalf("reading index.json: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("index.json is empty")
	}
	first, last := strings.Index(string(data), `"aaa"`), strings.Index(string(data), `"zzz"`)
	if first < 0 || last < 0 || first > last {
		t.Errorf("index.json entries not sorted by key:\n%s", data)
	}
}
