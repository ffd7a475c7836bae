package plan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"clydepm/internal/clyerr"
	"clydepm/internal/depgraph"
	"clydepm/internal/manifest"
	"clydepm/internal/toolchain"
)

// Options carries the inputs the planner needs beyond the graph and
// the manifests it already holds: where each package's sources live on
// disk, where build outputs should be written, which traits are
// active, and the global compiler-family defaults a deployment wants
// applied ahead of every manifest's own flags.
type Options struct {
	// LayoutRoot is the directory under which every package's obj/ and
	// artifact directories are created, e.g. "<cache_root>/build".
	LayoutRoot string

	// PackageRoots maps a graph node ID to the filesystem directory
	// containing that package's manifest and sources.
	PackageRoots map[string]string

	// ActiveTraits gates Variant overlays, per manifest.ActiveVariants.
	ActiveTraits map[string]string

	// GlobalCFlags and GlobalLDFlags key by compiler family ("gcc",
	// "clang") and are prepended ahead of each manifest's own flags.
	GlobalCFlags  map[string][]string
	GlobalLDFlags map[string][]string
}

// Plan computes a BuildPlan for every package in g, using manifests
// (keyed by graph node ID) and probe to select the active compiler
// family's flag sets.
func Plan(g *depgraph.Graph, manifests map[string]*manifest.Manifest, probe toolchain.Probe, opts Options) (*BuildPlan, error) {
	order := g.TopologicalOrder()
	bp := &BuildPlan{Packages: make(map[string]*PackagePlan, len(order)), Order: order}

	for _, id := range order {
		m, ok := manifests[id]
		if !ok || m == nil {
			return nil, &clyerr.PlanError{Package: id, Msg: "no manifest for package"}
		}
		root, ok := opts.PackageRoots[id]
		if !ok || root == "" {
			return nil, &clyerr.PlanError{Package: id, Msg: "no package root configured"}
		}

		depIDs := orderedTransitiveDeps(g, id)

		layout := packageLayout(opts.LayoutRoot, root, id, m)

		includeDirs := []string{layout.IncludeDir, layout.PrivateIncludeDir}
		for _, depID := range depIDs {
			if depPlan, ok := bp.Packages[depID]; ok {
				includeDirs = appendDeduped(includeDirs, depPlan.Layout.IncludeDir)
			}
		}

		cflags := effectiveFlags(probe.Family, m.CFlags, m.ActiveVariants(opts.ActiveTraits), true, opts.GlobalCFlags[probe.Family])
		for _, depID := range depIDs {
			if depManifest, ok := manifests[depID]; ok {
				cflags = append(cflags, splitFlags(depManifest.CFlags[probe.Family])...)
			}
		}

		sources, err := expandSources(root, m.Sources)
		if err != nil {
			return nil, &clyerr.PlanError{Package: id, Msg: "expanding source globs", Err: err}
		}
		if len(sources) == 0 {
			return nil, &clyerr.PlanError{Code: clyerr.EmptySources, Package: id, Msg: "no source files matched"}
		}

		compileSteps := make([]CompileStep, 0, len(sources))
		for _, rel := range sources {
			obj := filepath.Join(layout.ObjDir, objectRelPath(rel))
			compileSteps = append(compileSteps, CompileStep{
				PackageID:   id,
				Source:      filepath.Join(root, rel),
				Object:      obj,
				IncludeDirs: includeDirs,
				Flags:       cflags,
			})
		}

		ldflags := effectiveFlags(probe.Family, m.LDFlags, m.ActiveVariants(opts.ActiveTraits), false, opts.GlobalLDFlags[probe.Family])
		for _, depID := range depIDs {
			if depManifest, ok := manifests[depID]; ok {
				ldflags = append(ldflags, splitFlags(depManifest.LDFlags[probe.Family])...)
			}
		}

		objects := make([]string, 0, len(compileSteps))
		for _, cs := range compileSteps {
			objects = append(objects, cs.Object)
		}

		kind := "static"
		if m.Type == manifest.Application {
			kind = "executable"
		}

		var depArtifacts []string
		if m.Type == manifest.Application {
			for _, depID := range depIDs {
				if depPlan, ok := bp.Packages[depID]; ok && depPlan.Layout.ArtifactPath != "" {
					depArtifacts = append(depArtifacts, depPlan.Layout.ArtifactPath)
				}
			}
		}

		linkStep := LinkStep{
			PackageID:           id,
			Kind:                kind,
			Objects:             objects,
			DependencyArtifacts: depArtifacts,
			Output:              layout.ArtifactPath,
			Flags:               ldflags,
		}

		pp := &PackagePlan{ID: id, Layout: layout, CompileSteps: compileSteps, LinkStep: linkStep}
		bp.Packages[id] = pp

		if w := checkIncludeHygiene(id, layout, m.Name); w != "" {
			bp.Warnings = append(bp.Warnings, w)
		}
	}

	return bp, nil
}

func packageLayout(layoutRoot, pkgRoot, id string, m *manifest.Manifest) PackageLayout {
	dir := filepath.Join(layoutRoot, sanitizeID(id))
	artifactName := "lib" + baseName(m.Name) + ".a"
	if m.Type == manifest.Application {
		artifactName = baseName(m.Name)
	}
	return PackageLayout{
		Root:              pkgRoot,
		IncludeDir:        filepath.Join(pkgRoot, "include"),
		PrivateIncludeDir: filepath.Join(pkgRoot, "private_include"),
		ObjDir:            filepath.Join(dir, "obj"),
		ArtifactPath:      filepath.Join(dir, "lib", artifactName),
	}
}

// baseName strips an "@org/" prefix from a manifest name for use in a
// filename.
func baseName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// orderedTransitiveDeps returns id's dependencies (direct first, then
// the rest of the transitive closure reachable through them),
// deduplicated by first occurrence, matching §4.C's include-path
// ordering rule.
func orderedTransitiveDeps(g *depgraph.Graph, id string) []string {
	var out []string
	seen := map[string]bool{id: true}

	queue := append([]string(nil), g.Dependencies(id)...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, next)
		queue = append(queue, g.Dependencies(next)...)
	}
	return out
}

func appendDeduped(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func splitFlags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}

// effectiveFlags concatenates, in the order §4.C specifies: global
// defaults for the family, the manifest's own flags for that family,
// then each active variant's overlay flags for that family.
func effectiveFlags(family string, own manifest.FlagSet, variants []manifest.Variant, isCFlags bool, globalDefaults []string) []string {
	var out []string
	out = append(out, globalDefaults...)
	out = append(out, splitFlags(own[family])...)
	for _, v := range variants {
		set := v.LDFlags
		if isCFlags {
			set = v.CFlags
		}
		out = append(out, splitFlags(set[family])...)
	}
	return out
}

func expandSources(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	var out []string
	seen := map[string]bool{}
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := fs.Stat(fsys, m)
			if err != nil || info.IsDir() {
				continue
			}
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// objectRelPath maps a source's relative path to its object file's
// relative path, preserving subdirectory structure so that two
// same-named sources in different directories don't collide.
func objectRelPath(rel string) string {
	ext := filepath.Ext(rel)
	return strings.TrimSuffix(rel, ext) + ".o"
}

// checkIncludeHygiene warns (non-fatal) when a package's public
// include directory contains headers directly, rather than namespaced
// beneath include/<pkg-name>/, per §4.C's hygiene invariant.
func checkIncludeHygiene(id string, layout PackageLayout, pkgName string) string {
	entries, err := os.ReadDir(layout.IncludeDir)
	if err != nil {
		return ""
	}
	namespaced := baseName(pkgName)
	for _, e := range entries {
		if e.IsDir() && e.Name() == namespaced {
			continue
		}
		if !e.IsDir() {
			return fmt.Sprintf("package %q exposes unnamespaced public header %q (expected under include/%s/)", id, e.Name(), namespaced)
		}
	}
	return ""
}
