package registry

import (
	"context"
	"testing"

	"clydepm/internal/manifest"
	"clydepm/internal/semver"
)

func TestMemoryPublishAndFetch(t *testing.T) {
	reg := NewMemory()
	v := semver.MustParse("1.2.3")
	reg.Publish("mathlib", v, []byte("tarball-bytes"), Metadata{Name: "mathlib", Version: v, Type: manifest.Library})

	tarball, meta, err := reg.Fetch(context.Background(), "mathlib", v)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(tarball) != "tarball-bytes" {
		t.Errorf("tarball = %q", tarball)
	}
	if meta.Type != manifest.Library {
		t.Errorf("meta.Type = %q, want library", meta.Type)
	}
}

func TestMemoryListVersionsSorted(t *testing.T) {
	reg := NewMemory()
	for _, s := range []string{"2.0.0", "1.0.0", "1.5.0"} {
		reg.Publish("mathlib", semver.MustParse(s), nil, Metadata{})
	}

	versions, err := reg.ListVersions(context.Background(), "mathlib")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	want := []string{"1.0.0", "1.5.0", "2.0.0"}
	if len(versions) != len(want) {
		t.Fatalf("len(versions) = %d, want %d", len(versions), len(want))
	}
	for i, v := range versions {
		if v.String() != want[i] {
			t.Errorf("versions[%d] = %q, want %q", i, v.String(), want[i])
		}
	}
}

func TestMemoryFetchNotFound(t *testing.T) {
	reg := NewMemory()
	_, _, err := reg.Fetch(context.Background(), "missing", semver.MustParse("1.0.0"))
	if err == nil {
		t.Fatal("expected NotFoundError")
	}
	var nf *NotFoundError
	if !isNotFound(err, &nf) {
		t.Errorf("error = %v, want *NotFoundError", err)
	}
}

func isNotFound(err error, target **NotFoundError) bool {
	nf, ok := err.(*NotFoundError)
	if !ok {
		return false
	}
	*target = nf
	return true
}

func TestMemoryListVersionsUnknownPackage(t *testing.T) {
	reg := NewMemory()
	_, err := reg.ListVersions(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error for unknown package")
	}
}

func TestMemoryPublishOverwritesSameVersion(t *testing.T) {
	reg := NewMemory()
	v := semver.MustParse("1.0.0")
	reg.Publish("mathlib", v, []byte("first"), Metadata{})
	reg.Publish("mathlib", v, []byte("second"), Metadata{})

	tarball, _, err := reg.Fetch(context.Background(), "mathlib", v)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(tarball) != "second" {
		t.Errorf("tarball = %q, want second (overwrite)", tarball)
	}

	versions, _ := reg.ListVersions(context.Background(), "mathlib")
	if len(versions) != 1 {
		t.Errorf("len(versions) = %d, want 1 (no duplicate entry)", len(versions))
	}
}
