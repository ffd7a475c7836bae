package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"clydepm/internal/clyerr"
	"clydepm/internal/depgraph"
	"clydepm/internal/manifest"
	"clydepm/internal/registry"
	"clydepm/internal/semver"
	"clydepm/internal/store"
)

// manifestFilenames are tried in order when reading a materialized
// package tree's manifest; config.yaml is the legacy alias.
var manifestFilenames = []string{"package.yml", "config.yaml"}

// Resolver resolves a root manifest's transitive dependency graph
// against a Registry, materializing fetched sources through a Store.
type Resolver struct {
	registry registry.Registry
	store    *store.Store
	logger   *log.Logger
}

// New returns a Resolver. logger may be nil, in which case resolution
// runs silently.
func New(reg registry.Registry, st *store.Store, logger *log.Logger) *Resolver {
	return &Resolver{registry: reg, store: st, logger: logger}
}

func (r *Resolver) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(fmt.Sprintf(format, args...))
	}
}

// resolution is the mutable state threaded through one Resolve call.
type resolution struct {
	selectedVersion map[string]semver.Version
	constraints     map[string][]semver.Constraint
	manifests       map[string]*manifest.Manifest
	visiting        map[string]bool
	edgeSeen        map[depgraph.Edge]bool
	edges           []depgraph.Edge
}

func newResolution() *resolution {
	return &resolution{
		selectedVersion: make(map[string]semver.Version),
		constraints:     make(map[string][]semver.Constraint),
		manifests:       make(map[string]*manifest.Manifest),
		visiting:        make(map[string]bool),
		edgeSeen:        make(map[depgraph.Edge]bool),
	}
}

func packageID(name string, version semver.Version) string {
	return name + "@" + version.String()
}

// Resolve builds the dependency graph rooted at (rootName, root).
func (r *Resolver) Resolve(ctx context.Context, rootName string, root *manifest.Manifest) (*depgraph.Graph, map[string]*manifest.Manifest, error) {
	res := newResolution()
	res.manifests[rootName] = root
	res.selectedVersion[rootName] = root.Version
	res.visiting[rootName] = true

	if err := r.walk(ctx, res, rootName, root, []string{rootName}); err != nil {
		return nil, nil, err
	}
	res.visiting[rootName] = false

	packages := make([]depgraph.Package, 0, len(res.manifests))
	for name, m := range res.manifests {
		v := res.selectedVersion[name]
		packages = append(packages, depgraph.Package{
			ID:       packageID(name, v),
			Name:     name,
			Version:  v,
			Manifest: m,
		})
	}

	graph, err := depgraph.New(packages, res.edges)
	if err != nil {
		return nil, nil, &clyerr.ResolveError{
			Code: clyerr.CircularDependency,
			Msg:  err.Error(),
			Err:  err,
		}
	}
	return graph, res.manifests, nil
}

// walk processes one manifest's requirements, in deterministic (sorted
// requirement-name) order.
func (r *Resolver) walk(ctx context.Context, res *resolution, name string, m *manifest.Manifest, path []string) error {
	depNames := make([]string, 0, len(m.Requires))
	for dep := range m.Requires {
		depNames = append(depNames, dep)
	}
	sort.Strings(depNames)

	for _, depName := range depNames {
		constraintStr := m.Requires[depName]
		constraint, err := semver.ParseConstraint(constraintStr)
		if err != nil {
			return &clyerr.ResolveError{
				Code:    clyerr.NoCompatibleVersion,
				Package: depName,
				Path:    path,
				Msg:     fmt.Sprintf("invalid constraint %q: %v", constraintStr, err),
				Err:     err,
			}
		}

		if err := r.resolveDependency(ctx, res, depName, constraint, append(append([]string{}, path...), depName)); err != nil {
			return err
		}

		depVersion := res.selectedVersion[depName]
		edge := depgraph.Edge{From: packageID(depName, depVersion), To: packageID(name, res.selectedVersion[name])}
		if !res.edgeSeen[edge] {
			res.edgeSeen[edge] = true
			res.edges = append(res.edges, edge)
		}
	}
	return nil
}

func (r *Resolver) resolveDependency(ctx context.Context, res *resolution, name string, constraint semver.Constraint, path []string) error {
	if res.visiting[name] {
		return &clyerr.ResolveError{
			Code:    clyerr.CircularDependency,
			Package: name,
			Path:    path,
			Msg:     "circular dependency detected",
		}
	}

	res.constraints[name] = append(res.constraints[name], constraint)

	if existing, ok := res.selectedVersion[name]; ok {
		merged, err := semver.Intersect(res.constraints[name]...)
		if err != nil {
			return &clyerr.ResolveError{
				Code:    clyerr.VersionConflict,
				Package: name,
				Path:    path,
				Msg:     fmt.Sprintf("constraint set for %q is unsatisfiable: %v", name, err),
				Err:     err,
			}
		}
		// A successful Intersect of GitRef/LocalPath constraints means
		// every requirer named the same source the package was taken from.
		opaque := merged.Kind == semver.GitRef || merged.Kind == semver.LocalPath
		if !opaque && !semver.Satisfies(merged, existing) {
			return &clyerr.ResolveError{
				Code:    clyerr.VersionConflict,
				Package: name,
				Path:    path,
				Msg:     fmt.Sprintf("%q was already resolved to %s, which does not satisfy %s", name, existing.String(), constraint.String()),
			}
		}
		return nil
	}

	depManifest, version, err := r.fetch(ctx, name, constraint, path)
	if err != nil {
		return err
	}

	res.visiting[name] = true
	res.selectedVersion[name] = version
	res.manifests[name] = depManifest

	r.logf("resolved %s@%s", name, version.String())

	if err := r.walk(ctx, res, name, depManifest, path); err != nil {
		return err
	}
	res.visiting[name] = false
	return nil
}

// fetch resolves constraint to a concrete version of name and returns
// its manifest, handling the LocalPath and GitRef constraint kinds in
// addition to ordinary semver ranges.
func (r *Resolver) fetch(ctx context.Context, name string, constraint semver.Constraint, path []string) (*manifest.Manifest, semver.Version, error) {
	switch constraint.Kind {
	case semver.LocalPath:
		return r.fetchLocal(constraint.Path, path)
	case semver.GitRef:
		return nil, semver.Version{}, &clyerr.ResolveError{
			Code:    clyerr.FetchFailed,
			Package: name,
			Path:    path,
			Msg:     fmt.Sprintf("git-ref requirements (%s) require a git-backed registry, which is not wired into this resolver", constraint.Ref),
		}
	default:
		return r.fetchFromRegistry(ctx, name, constraint, path)
	}
}

func (r *Resolver) fetchLocal(path string, provenance []string) (*manifest.Manifest, semver.Version, error) {
	for _, filename := range manifestFilenames {
		full := filepath.Join(path, filename)
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		m, err := manifest.Parse(data, full)
		if err != nil {
			return nil, semver.Version{}, err
		}
		return m, m.Version, nil
	}
	return nil, semver.Version{}, &clyerr.ResolveError{
		Code: clyerr.FetchFailed,
		Path: provenance,
		Msg:  fmt.Sprintf("no package.yml or config.yaml found under local path %q", path),
	}
}

func (r *Resolver) fetchFromRegistry(ctx context.Context, name string, constraint semver.Constraint, path []string) (*manifest.Manifest, semver.Version, error) {
	if r.registry == nil {
		return nil, semver.Version{}, &clyerr.ResolveError{
			Code: clyerr.FetchFailed, Package: name, Path: path,
			Msg: "no registry configured",
		}
	}

	available, err := r.registry.ListVersions(ctx, name)
	if err != nil {
		return nil, semver.Version{}, &clyerr.ResolveError{
			Code: clyerr.FetchFailed, Package: name, Path: path,
			Msg: err.Error(), Err: err,
		}
	}

	var best *semver.Version
	for i := range available {
		v := available[i]
		if !semver.Satisfies(constraint, v) {
			continue
		}
		if best == nil || v.GreaterThan(*best) {
			candidate := v
			best = &candidate
		}
	}
	if best == nil {
		return nil, semver.Version{}, &clyerr.ResolveError{
			Code: clyerr.NoCompatibleVersion, Package: name, Path: path,
			Msg: fmt.Sprintf("no version of %q satisfies %s", name, constraint.String()),
		}
	}

	tarball, _, err := r.registry.Fetch(ctx, name, *best)
	if err != nil {
		return nil, semver.Version{}, &clyerr.ResolveError{
			Code: clyerr.FetchFailed, Package: name, Path: path,
			Msg: err.Error(), Err: err,
		}
	}

	if r.store == nil {
		return nil, semver.Version{}, &clyerr.ResolveError{
			Code: clyerr.FetchFailed, Package: name, Path: path,
			Msg: "no store configured to materialize fetched sources",
		}
	}
	_, dir, err := r.store.Materialize(tarball)
	if err != nil {
		return nil, semver.Version{}, &clyerr.ResolveError{
			Code: clyerr.FetchFailed, Package: name, Path: path,
			Msg: err.Error(), Err: err,
		}
	}

	for _, filename := range manifestFilenames {
		full := filepath.Join(dir, filename)
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		m, err := manifest.Parse(data, full)
		if err != nil {
			return nil, semver.Version{}, err
		}
		if len(m.UnknownKeys) > 0 {
			r.logf("%s@%s: unrecognized manifest keys: %v", name, best.String(), m.UnknownKeys)
		}
		return m, *best, nil
	}
	return nil, semver.Version{}, &clyerr.ResolveError{
		Code: clyerr.FetchFailed, Package: name, Path: path,
		Msg: fmt.Sprintf("fetched tarball for %s@%s contains no package.yml or config.yaml", name, best.String()),
	}
}
