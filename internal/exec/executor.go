package exec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"clydepm/internal/cache"
	"clydepm/internal/cachekey"
	"clydepm/internal/clyerr"
	"clydepm/internal/depgraph"
	"clydepm/internal/hooks"
	"clydepm/internal/plan"
	"clydepm/internal/toolchain"
)

// Executor drives a plan.BuildPlan across a worker pool, staged by the
// dependency graph's topological depth.
type Executor struct {
	Driver    toolchain.Driver
	Objects   *cache.ObjectCache
	Artifacts *cache.ArtifactCache
	Bus       *hooks.Bus
	Opts      Options

	probe toolchain.Probe
	sf    singleflight.Group
}

// New probes driver once (per §4.D, "cached per-process") and returns
// an Executor ready to Run. A probe failure is always fatal.
func New(ctx context.Context, driver toolchain.Driver, objects *cache.ObjectCache, artifacts *cache.ArtifactCache, bus *hooks.Bus, opts Options) (*Executor, error) {
	probe, err := driver.Probe(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Executor{Driver: driver, Objects: objects, Artifacts: artifacts, Bus: bus, Opts: opts, probe: probe}, nil
}

// Probe returns the toolchain identity this Executor was constructed
// against.
func (e *Executor) Probe() toolchain.Probe { return e.probe }

// Run drives bp to completion. ctx governs cancellation: workers
// finish whatever child-process call is already in flight (a killed
// compiler would leave a partial, cache-poisoning object file) and no
// further step is started once ctx is done.
func (e *Executor) Run(ctx context.Context, g *depgraph.Graph, bp *plan.BuildPlan) (*Summary, error) {
	summary := &Summary{Packages: make(map[string]*PackageOutcome, len(bp.Order)), Order: bp.Order}

	if err := e.emit(hooks.Event{Point: hooks.PreBuild}); err != nil {
		return summary, err
	}

	for _, id := range bp.Order {
		summary.Packages[id] = &PackageOutcome{PackageID: id}
	}

	failed := map[string]bool{}
	var stopped atomic.Bool

	stages := g.ReadyAtDepth()
	for _, stage := range stages {
		sort.Strings(stage)

		if stopped.Load() || ctx.Err() != nil {
			for _, id := range stage {
				summary.Packages[id].Skipped = true
			}
			continue
		}

		runnable, skipped := partitionByDependencyHealth(g, stage, failed)
		for _, id := range skipped {
			summary.Packages[id].Skipped = true
			failed[id] = true // a skipped package cannot satisfy its own dependents either
		}

		if err := e.runCompilePhase(ctx, bp, runnable, summary, failed, &stopped); err != nil {
			return summary, err
		}
		if err := e.runLinkPhase(ctx, bp, runnable, summary, failed, &stopped); err != nil {
			return summary, err
		}
	}

	if err := e.emit(hooks.Event{Point: hooks.PostBuild, Result: summary}); err != nil {
		return summary, err
	}
	return summary, nil
}

// partitionByDependencyHealth splits stage into packages whose every
// dependency already succeeded versus those that must be skipped
// because a dependency failed or was itself skipped.
func partitionByDependencyHealth(g *depgraph.Graph, stage []string, failed map[string]bool) (runnable, skipped []string) {
	for _, id := range stage {
		healthy := true
		for _, dep := range g.Dependencies(id) {
			if failed[dep] {
				healthy = false
				break
			}
		}
		if healthy {
			runnable = append(runnable, id)
		} else {
			skipped = append(skipped, id)
		}
	}
	return runnable, skipped
}

func (e *Executor) runCompilePhase(ctx context.Context, bp *plan.BuildPlan, ids []string, summary *Summary, failed map[string]bool, stopped *atomic.Bool) error {
	type job struct {
		pkgID string
		step  plan.CompileStep
	}
	var jobs []job
	for _, id := range ids {
		pp := bp.Packages[id]
		if err := os.MkdirAll(pp.Layout.ObjDir, 0o755); err != nil {
			return fmt.Errorf("creating obj dir for %s: %w", id, err)
		}
		for _, step := range pp.CompileSteps {
			jobs = append(jobs, job{pkgID: id, step: step})
		}
	}

	var mu sync.Mutex
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(e.Opts.Workers)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if stopped.Load() || ctx.Err() != nil {
				mu.Lock()
				summary.Packages[j.pkgID].Compiles = append(summary.Packages[j.pkgID].Compiles, CompileStepResult{PackageID: j.pkgID, Source: j.step.Source})
				mu.Unlock()
				return nil
			}

			res := e.compileOne(ctx, j.pkgID, j.step)

			var hookErr *clyerr.HookError
			isHookErr := errors.As(res.Err, &hookErr)

			mu.Lock()
			summary.Packages[j.pkgID].Compiles = append(summary.Packages[j.pkgID].Compiles, res)
			if res.Err != nil {
				failed[j.pkgID] = true
				if e.Opts.FailFast || isHookErr {
					stopped.Store(true)
				}
			}
			mu.Unlock()

			if isHookErr {
				return res.Err
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Executor) compileOne(ctx context.Context, pkgID string, step plan.CompileStep) CompileStepResult {
	key, err := e.objectKey(step)
	if err != nil {
		return CompileStepResult{PackageID: pkgID, Source: step.Source, Err: err}
	}

	if hookErr := e.emit(hooks.Event{Point: hooks.PreCompile, PackageID: pkgID, Step: step}); hookErr != nil {
		return CompileStepResult{PackageID: pkgID, Source: step.Source, Err: hookErr}
	}

	v, err, _ := e.sf.Do("object:"+key.String(), func() (any, error) {
		if err := os.MkdirAll(filepath.Dir(step.Object), 0o755); err != nil {
			return nil, err
		}

		if entry, ok, getErr := e.objectsGet(key); getErr == nil && ok {
			if writeErr := os.WriteFile(step.Object, entry.Object, 0o644); writeErr != nil {
				return nil, writeErr
			}
			e.metrics().RecordCacheHit("object")
			return true, nil
		}
		e.metrics().RecordCacheMiss("object")

		stepCtx := context.WithoutCancel(ctx)
		var cancel context.CancelFunc
		if e.Opts.StepTimeout > 0 {
			stepCtx, cancel = context.WithTimeout(stepCtx, e.Opts.StepTimeout)
			defer cancel()
		}

		result, err := e.Driver.Compile(stepCtx, toolchain.CompileJob{
			Package:     pkgID,
			Source:      step.Source,
			Output:      step.Object,
			IncludeDirs: step.IncludeDirs,
			Flags:       step.Flags,
			WorkingDir:  filepath.Dir(step.Source),
		})
		if err != nil {
			if stepCtx.Err() == context.DeadlineExceeded {
				return nil, &clyerr.StepTimeout{PackageID: pkgID, Step: "compile", Target: step.Source}
			}
			return nil, err
		}

		objectBytes, readErr := os.ReadFile(result.ObjectPath)
		if readErr != nil {
			return nil, readErr
		}
		entry := cache.ObjectEntry{Key: key, Object: objectBytes, Includes: result.Includes}
		if putErr := e.Objects.Put(entry); putErr != nil {
			// A cache write failure is logged and non-fatal per §4.E,
			// unless the subscriber observing it is critical.
			if hookErr := e.emit(hooks.Event{Point: hooks.PostCompile, PackageID: pkgID, Step: step, Err: putErr}); hookErr != nil {
				return nil, hookErr
			}
		}
		return entry, nil
	})

	cacheHit, _ := v.(bool)
	res := CompileStepResult{PackageID: pkgID, Source: step.Source, CacheHit: cacheHit, Err: err}

	if hookErr := e.emit(hooks.Event{Point: hooks.PostCompile, PackageID: pkgID, Step: step, Result: res, Err: res.Err}); hookErr != nil && res.Err == nil {
		res.Err = hookErr
	}
	return res
}

func (e *Executor) objectsGet(key cachekey.Key) (cache.ObjectEntry, bool, error) {
	if e.Objects == nil {
		return cache.ObjectEntry{}, false, nil
	}
	return e.Objects.Get(key)
}

func (e *Executor) runLinkPhase(ctx context.Context, bp *plan.BuildPlan, ids []string, summary *Summary, failed map[string]bool, stopped *atomic.Bool) error {
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(e.Opts.Workers)
	var mu sync.Mutex

	for _, id := range ids {
		id := id
		if failed[id] {
			continue
		}
		pp := bp.Packages[id]

		g.Go(func() error {
			if stopped.Load() || ctx.Err() != nil {
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(pp.LinkStep.Output), 0o755); err != nil {
				mu.Lock()
				summary.Packages[id].Link = LinkStepResult{PackageID: id, Err: err}
				failed[id] = true
				mu.Unlock()
				return nil
			}

			res := e.linkOne(ctx, id, pp.LinkStep)

			var hookErr *clyerr.HookError
			isHookErr := errors.As(res.Err, &hookErr)

			mu.Lock()
			summary.Packages[id].Link = res
			if res.Err != nil {
				failed[id] = true
				if e.Opts.FailFast || isHookErr {
					stopped.Store(true)
				}
			} else if pp.LinkStep.Kind == "static" {
				if depErr := e.emit(hooks.Event{Point: hooks.PostDependencyBuild, PackageID: id}); depErr != nil {
					summary.Packages[id].Link.Err = depErr
					failed[id] = true
					stopped.Store(true)
					isHookErr = true
					res.Err = depErr
				}
			}
			mu.Unlock()

			if isHookErr {
				return res.Err
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Executor) linkOne(ctx context.Context, pkgID string, step plan.LinkStep) LinkStepResult {
	key, err := e.artifactKey(step)
	if err != nil {
		return LinkStepResult{PackageID: pkgID, Err: err}
	}

	if hookErr := e.emit(hooks.Event{Point: hooks.PreLink, PackageID: pkgID, Step: step}); hookErr != nil {
		return LinkStepResult{PackageID: pkgID, Err: hookErr}
	}

	var hitValue any
	hitValue, err, _ = e.sf.Do("artifact:"+key.String(), func() (any, error) {
		if e.Artifacts != nil {
			if ok, getErr := e.Artifacts.Extract(key, filepath.Dir(step.Output)); getErr == nil && ok {
				e.metrics().RecordCacheHit("artifact")
				return true, nil
			}
		}
		e.metrics().RecordCacheMiss("artifact")

		stepCtx := context.WithoutCancel(ctx)
		var cancel context.CancelFunc
		if e.Opts.StepTimeout > 0 {
			stepCtx, cancel = context.WithTimeout(stepCtx, e.Opts.StepTimeout)
			defer cancel()
		}

		result, linkErr := e.Driver.Link(stepCtx, toolchain.LinkJob{
			Package:    pkgID,
			Objects:    step.Objects,
			Output:     step.Output,
			Flags:      step.Flags,
			WorkingDir: filepath.Dir(step.Output),
			Kind:       step.Kind,
		})
		if linkErr != nil {
			if stepCtx.Err() == context.DeadlineExceeded {
				return nil, &clyerr.StepTimeout{PackageID: pkgID, Step: "link", Target: step.Output}
			}
			return nil, linkErr
		}

		if e.Artifacts != nil {
			packageName := filepath.Base(step.Output)
			if putErr := e.Artifacts.Put(key, packageName, result.ArtifactPath, nil); putErr != nil {
				if hookErr := e.emit(hooks.Event{Point: hooks.PostLink, PackageID: pkgID, Step: step, Err: putErr}); hookErr != nil {
					return nil, hookErr
				}
			}
		}
		return false, nil
	})

	cacheHit, _ := hitValue.(bool)
	res := LinkStepResult{PackageID: pkgID, CacheHit: cacheHit, Err: err}
	if hookErr := e.emit(hooks.Event{Point: hooks.PostLink, PackageID: pkgID, Step: step, Result: res, Err: res.Err}); hookErr != nil && res.Err == nil {
		res.Err = hookErr
	}
	return res
}

// emit delivers ev to e.Bus and reports a critical subscriber's
// failure as a *clyerr.HookError; the Bus itself never returns an
// error for a non-critical subscriber's failure, so any non-nil
// return here always means the build must abort.
func (e *Executor) emit(ev hooks.Event) error {
	if e.Bus == nil {
		return nil
	}
	if err := e.Bus.Emit(ev); err != nil {
		return &clyerr.HookError{Point: string(ev.Point), PackageID: ev.PackageID, Err: err}
	}
	return nil
}

// metrics returns e.Bus's Metrics, nil-safely: Metrics' own methods are
// nil-receiver-safe no-ops, but reading the field off a nil *Bus is not.
func (e *Executor) metrics() *hooks.Metrics {
	if e.Bus == nil {
		return nil
	}
	return e.Bus.Metrics
}

// objectKey assembles the ObjectCache key for step, using an
// over-approximation of §4.D's include-digest rule: every header file
// reachable under step's declared include directories is hashed,
// rather than only those the compiler actually reads for this
// particular source. This trades some avoidable cache invalidation
// (a header edit anywhere in an include dir invalidates every source
// that merely has that dir on its include path) for avoiding the
// first-compile/second-compile bootstrapping problem a precise
// discovered-includes key would need.
func (e *Executor) objectKey(step plan.CompileStep) (cachekey.Key, error) {
	sourceDigest, err := digestFile(step.Source)
	if err != nil {
		return "", err
	}
	includeDigests, err := digestHeaders(step.IncludeDirs)
	if err != nil {
		return "", err
	}
	return cachekey.ObjectKey(cachekey.CompileInput{
		SourcePath:     step.Source,
		SourceDigest:   sourceDigest,
		CompilerID:     e.probe.ID,
		Flags:          step.Flags,
		IncludeDigests: includeDigests,
	}), nil
}

func (e *Executor) artifactKey(step plan.LinkStep) (cachekey.Key, error) {
	objectKeys := make([]cachekey.Key, 0, len(step.Objects))
	for _, obj := range step.Objects {
		digest, err := digestFile(obj)
		if err != nil {
			// The object may not exist yet if this link is racing a
			// same-process compile for a package with no prior build;
			// fall back to the path itself, which still changes key
			// identity across different sources/outputs.
			objectKeys = append(objectKeys, cachekey.Key(obj))
			continue
		}
		objectKeys = append(objectKeys, cachekey.Key(digest))
	}

	depKeys := make(map[string]string, len(step.DependencyArtifacts))
	for _, artifactPath := range step.DependencyArtifacts {
		digest, err := digestFile(artifactPath)
		if err != nil {
			depKeys[artifactPath] = artifactPath
			continue
		}
		depKeys[artifactPath] = digest
	}

	return cachekey.ArtifactKey(cachekey.LinkInput{
		ObjectKeys:             objectKeys,
		LinkerID:               e.probe.ID,
		LDFlags:                step.Flags,
		DependencyArtifactKeys: depKeys,
	}), nil
}

func digestFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}

var headerExtensions = map[string]bool{".h": true, ".hh": true, ".hpp": true, ".hxx": true}

func digestHeaders(dirs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() || !headerExtensions[filepath.Ext(path)] {
				return nil
			}
			digest, derr := digestFile(path)
			if derr != nil {
				return derr
			}
			out[path] = digest
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
