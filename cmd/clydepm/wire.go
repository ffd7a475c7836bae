package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"clydepm/internal/cache"
	"clydepm/internal/clyerr"
	"clydepm/internal/config"
	"clydepm/internal/depgraph"
	"clydepm/internal/hooks"
	"clydepm/internal/manifest"
	"clydepm/internal/registry"
	"clydepm/internal/resolve"
	"clydepm/internal/semver"
	"clydepm/internal/store"
	"clydepm/internal/toolchain"
)

// loadConfig resolves the layered RunConfig for the current working
// directory, applying any flag overrides the caller collected.
func loadConfig(logLevel string, workers int) (*config.RunConfig, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	over := config.Overrides{}
	if logLevel != "" {
		over.LogLevel = &logLevel
	}
	if workers > 0 {
		over.Workers = &workers
	}
	return config.Load(workDir, over)
}

func newLogger(cfg *config.RunConfig) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	switch cfg.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}

// loadRootManifest reads the first manifest found in cfg.WorkDir under
// one of cfg.ManifestNames.
func loadRootManifest(cfg *config.RunConfig) (string, *manifest.Manifest, error) {
	for _, name := range cfg.ManifestNames {
		path := filepath.Join(cfg.WorkDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		m, err := manifest.Parse(data, path)
		if err != nil {
			return "", nil, err
		}
		return m.Name, m, nil
	}
	return "", nil, &clyerr.ManifestError{Path: cfg.WorkDir, Msg: fmt.Sprintf("no manifest found (tried %v)", cfg.ManifestNames)}
}

// newResolver wires a Resolver against an in-memory registry and an
// on-disk package store rooted under cfg.StoreDir. The demonstration
// CLI never talks to a network registry; local-path requirements
// (§4.B's LocalPath constraint kind) are resolved directly off disk,
// which covers every dependency a single-checkout build exercises.
func newResolver(cfg *config.RunConfig, logger *log.Logger) *resolve.Resolver {
	reg := registry.NewMemory()
	st := store.New(cfg.StoreDir)
	return resolve.New(reg, st, logger)
}

// packageRoots recovers each resolved package's source directory for
// the planner: the root package lives at workDir, and every other
// resolved package was reached through a LocalPath requirement (the
// in-memory registry publishes nothing, so any non-root package in the
// graph was necessarily fetched that way). Requirement paths are used
// verbatim, matching how resolve.Resolver.fetchLocal already consumes
// them.
func packageRoots(workDir, rootID string, g *depgraph.Graph, manifests map[string]*manifest.Manifest) map[string]string {
	roots := map[string]string{rootID: workDir}
	for _, node := range g.Nodes() {
		m := manifests[node.Package.Name]
		if m == nil {
			continue
		}
		for depName, constraintStr := range m.Requires {
			c, err := semver.ParseConstraint(constraintStr)
			if err != nil || c.Kind != semver.LocalPath {
				continue
			}
			depID := depName + "@" + versionOf(g, depName)
			if _, ok := roots[depID]; !ok {
				roots[depID] = c.Path
			}
		}
	}
	return roots
}

// manifestsByID re-keys a name-keyed manifest set (as returned by
// resolve.Resolver.Resolve) by graph node ID, the key the build
// planner expects.
func manifestsByID(g *depgraph.Graph, manifests map[string]*manifest.Manifest) map[string]*manifest.Manifest {
	byID := make(map[string]*manifest.Manifest, len(manifests))
	for _, node := range g.Nodes() {
		if m, ok := manifests[node.Package.Name]; ok {
			byID[node.ID] = m
		}
	}
	return byID
}

func versionOf(g *depgraph.Graph, name string) string {
	for _, node := range g.Nodes() {
		if node.Package.Name == name {
			return node.Package.Version.String()
		}
	}
	return ""
}

func newDriver() toolchain.Driver {
	return toolchain.NewGCCFamily("", "")
}

func newCacheTier(cfg *config.RunConfig) (*cache.ObjectCache, *cache.ArtifactCache, *cache.Index, error) {
	idx, err := cache.OpenIndex(cfg.CacheDir)
	if err != nil {
		return nil, nil, nil, err
	}
	objects := cache.NewObjectCache(cfg.CacheDir, idx)
	artifacts := cache.NewArtifactCache(cfg.CacheDir, idx)
	return objects, artifacts, idx, nil
}

func newBus(logger *log.Logger) *hooks.Bus {
	metrics := hooks.NewMetrics(prometheus.DefaultRegisterer)
	return hooks.New(logger, metrics)
}

// registerLoggingHooks subscribes a non-critical handler that logs
// every compile/link failure the Hook Bus observes, the demonstration
// CLI's only built-in subscriber.
func registerLoggingHooks(bus *hooks.Bus, logger *log.Logger) {
	if logger == nil {
		return
	}
	handler := func(ev hooks.Event) {
		if ev.Err == nil {
			return
		}
		logger.Warn("build event reported an error", "point", ev.Point, "package", ev.PackageID, "err", ev.Err)
	}
	bus.Subscribe(hooks.PostCompile, false, handler)
	bus.Subscribe(hooks.PostLink, false, handler)
}
