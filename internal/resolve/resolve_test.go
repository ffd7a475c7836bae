package resolve

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"testing"

	"clydepm/internal/manifest"
	"clydepm/internal/registry"
	"clydepm/internal/semver"
	"clydepm/internal/store"
)

func tarGzManifest(t *testing.T, yaml string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	hdr := &tar.Header{Name: "package.yml", Size: int64(len(yaml)), Mode: 0o644, Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := tw.Write([]byte(yaml)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}
	return buf.Bytes()
}

func publish(t *testing.T, reg *registry.Memory, name, version, yaml string) {
	t.Helper()
	v := semver.MustParse(version)
	reg.Publish(name, v, tarGzManifest(t, yaml), registry.Metadata{Name: name, Version: v, Type: manifest.Library})
}

func TestResolveSimpleChain(t *testing.T) {
	reg := registry.NewMemory()
	publish(t, reg, "base", "1.0.0", "name: base\nversion: 1.0.0\ntype: library\n")

	root, err := manifest.Parse([]byte(`
name: app
version: 1.0.0
type: application
requires:
  base: "^1.0.0"
`), "package.yml")
	if err != nil {
		t.Fatalf("parse root: %v", err)
	}

	r := New(reg, store.New(t.TempDir()), nil)
	graph, manifests, err := r.Resolve(context.Background(), "app", root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := manifests["base"]; !ok {
		t.Error("expected base to be resolved")
	}
	order := graph.TopologicalOrder()
	if len(order) != 2 || order[0] != "base@1.0.0" || order[1] != "app@1.0.0" {
		t.Errorf("TopologicalOrder = %v, want [base@1.0.0 app@1.0.0]", order)
	}
}

func TestResolvePicksGreatestSatisfying(t *testing.T) {
	reg := registry.NewMemory()
	for _, v := range []string{"1.0.0", "1.2.0", "1.5.0", "2.0.0"} {
		publish(t, reg, "base", v, "name: base\nversion: "+v+"\ntype: library\n")
	}

	root, err := manifest.Parse([]byte(`
name: app
version: 1.0.0
type: application
requires:
  base: "^1.0.0"
`), "package.yml")
	if err != nil {
		t.Fatalf("parse root: %v", err)
	}

	r := New(reg, store.New(t.TempDir()), nil)
	_, manifests, err := r.Resolve(context.Background(), "app", root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if manifests["base"].Version.String() != "1.5.0" {
		t.Errorf("selected version = %s, want 1.5.0 (2.0.0 excluded by ^1.0.0)", manifests["base"].Version.String())
	}
}

func TestResolveNoCompatibleVersion(t *testing.T) {
	reg := registry.NewMemory()
	publish(t, reg, "base", "2.0.0", "name: base\nversion: 2.0.0\ntype: library\n")

	root, err := manifest.Parse([]byte(`
name: app
version: 1.0.0
type: application
requires:
  base: "^1.0.0"
`), "package.yml")
	if err != nil {
		t.Fatalf("parse root: %v", err)
	}

	r := New(reg, store.New(t.TempDir()), nil)
	_, _, err = r.Resolve(context.Background(), "app", root)
	if err == nil {
		t.Fatal("expected NoCompatibleVersion error")
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	reg := registry.NewMemory()
	publish(t, reg, "a", "1.0.0", "name: a\nversion: 1.0.0\ntype: library\nrequires:\n  b: \"^1.0.0\"\n")
	publish(t, reg, "b", "1.0.0", "name: b\nversion: 1.0.0\ntype: library\nrequires:\n  a: \"^1.0.0\"\n")

	root, err := manifest.Parse([]byte(`
name: app
version: 1.0.0
type: application
requires:
  a: "^1.0.0"
`), "package.yml")
	if err != nil {
		t.Fatalf("parse root: %v", err)
	}

	r := New(reg, store.New(t.TempDir()), nil)
	_, _, err = r.Resolve(context.Background(), "app", root)
	if err == nil {
		t.Fatal("expected circular dependency error")
	}
}

func TestResolveDetectsVersionConflict(t *testing.T) {
	reg := registry.NewMemory()
	publish(t, reg, "base", "1.0.0", "name: base\nversion: 1.0.0\ntype: library\n")
	publish(t, reg, "mid", "1.0.0", "name: mid\nversion: 1.0.0\ntype: library\nrequires:\n  base: \"^2.0.0\"\n")

	root, err := manifest.Parse([]byte(`
name: app
version: 1.0.0
type: application
requires:
  base: "^1.0.0"
  mid: "^1.0.0"
`), "package.yml")
	if err != nil {
		t.Fatalf("parse root: %v", err)
	}

	r := New(reg, store.New(t.TempDir()), nil)
	_, _, err = r.Resolve(context.Background(), "app", root)
	if err == nil {
		t.Fatal("expected version conflict error")
	}
}

func TestResolveDiamondSharesVersion(t *testing.T) {
	reg := registry.NewMemory()
	publish(t, reg, "base", "1.0.0", "name: base\nversion: 1.0.0\ntype: library\n")
	publish(t, reg, "left", "1.0.0", "name: left\nversion: 1.0.0\ntype: library\nrequires:\n  base: \"^1.0.0\"\n")
	publish(t, reg, "right", "1.0.0", "name: right\nversion: 1.0.0\ntype: library\nrequires:\n  base: \"^1.0.0\"\n")

	root, err := manifest.Parse([]byte(`
name: app
version: 1.0.0
type: application
requires:
  left: "^1.0.0"
  right: "^1.0.0"
`), "package.yml")
	if err != nil {
		t.Fatalf("parse root: %v", err)
	}

	r := New(reg, store.New(t.TempDir()), nil)
	graph, manifests, err := r.Resolve(context.Background(), "app", root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(manifests) != 4 {
		t.Errorf("len(manifests) = %d, want 4 (app, left, right, base)", len(manifests))
	}
	if len(graph.Nodes()) != 4 {
		t.Errorf("len(graph.Nodes()) = %d, want 4", len(graph.Nodes()))
	}
}
