package registry

import (
	"context"
	"fmt"
	"sort"

	"clydepm/internal/manifest"
	"clydepm/internal/semver"
)

// Metadata accompanies a fetched tarball so the resolver and store never
// need a second round trip to learn what kind of package they just
// fetched (SUPPLEMENTED FEATURE: package-type metadata travels with the
// tarball).
type Metadata struct {
	Name    string
	Version semver.Version
	Type    manifest.PackageType
}

// Registry is the capability the resolver uses to discover versions of a
// named package and fetch its source tree.
type Registry interface {
	// ListVersions returns every version published for name, in no
	// particular order; callers sort as needed.
	ListVersions(ctx context.Context, name string) ([]semver.Version, error)

	// Fetch returns the tarball bytes and metadata for name@version.
	Fetch(ctx context.Context, name string, version semver.Version) ([]byte, Metadata, error)
}

// NotFoundError reports that name, or name@version, is not present in the
// registry.
type NotFoundError struct {
	Name    string
	Version *semver.Version
}

func (e *NotFoundError) Error() string {
	if e.Version != nil {
		return fmt.Sprintf("registry: %s@%s not found", e.Name, e.Version.String())
	}
	return fmt.Sprintf("registry: %s not found", e.Name)
}

// entry is one published version held by Memory.
type entry struct {
	version  semver.Version
	tarball  []byte
	metadata Metadata
}

// Memory is an in-memory Registry used by tests and by the local-path
// workflows that never touch a network. Safe for concurrent reads once
// populated; Publish is not safe to call concurrently with itself or
// with reads.
type Memory struct {
	packages map[string][]entry
}

// NewMemory returns an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{packages: make(map[string][]entry)}
}

// Publish adds a version of a package to the registry, overwriting any
// prior publish of the same name@version.
func (m *Memory) Publish(name string, version semver.Version, tarball []byte, meta Metadata) {
	entries := m.packages[name]
	for i, e := range entries {
		if e.version.Equal(version) {
			entries[i] = entry{version: version, tarball: tarball, metadata: meta}
			m.packages[name] = entries
			return
		}
	}
	m.packages[name] = append(entries, entry{version: version, tarball: tarball, metadata: meta})
}

func (m *Memory) ListVersions(_ context.Context, name string) ([]semver.Version, error) {
	entries, ok := m.packages[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	out := make([]semver.Version, len(entries))
	for i, e := range entries {
		out[i] = e.version
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out, nil
}

func (m *Memory) Fetch(_ context.Context, name string, version semver.Version) ([]byte, Metadata, error) {
	for _, e := range m.packages[name] {
		if e.version.Equal(version) {
			return e.tarball, e.metadata, nil
		}
	}
	return nil, Metadata{}, &NotFoundError{Name: name, Version: &version}
}
