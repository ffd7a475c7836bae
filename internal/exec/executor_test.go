package exec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clydepm/internal/cache"
	"clydepm/internal/clyerr"
	"clydepm/internal/depgraph"
	"clydepm/internal/hooks"
	"clydepm/internal/manifest"
	"clydepm/internal/plan"
	"clydepm/internal/semver"
	"clydepm/internal/toolchain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func version(t *testing.T, s string) semver.Version {
	t.Helper()
	v, err := semver.Parse(s)
	if err != nil {
		t.Fatalf("semver.Parse(%q): %v", s, err)
	}
	return v
}

// singlePackagePlan builds a minimal one-package executable BuildPlan
// and its matching Graph, for tests that only care about the
// Executor's own behavior.
func singlePackagePlan(t *testing.T) (*depgraph.Graph, *plan.BuildPlan, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "main.cpp"), "int main() {}")

	m := &manifest.Manifest{
		Name:     "app",
		Version:  version(t, "1.0.0"),
		Type:     manifest.Application,
		Language: manifest.Cpp,
		Sources:  []string{"src/**/*.cpp"},
	}

	g, err := depgraph.New(
		[]depgraph.Package{{ID: "app@1.0.0", Name: "app", Version: m.Version, Manifest: m}},
		nil,
	)
	if err != nil {
		t.Fatalf("depgraph.New: %v", err)
	}

	probe := toolchain.Probe{ID: "fake-1.0.0-x86_64-test", Family: "fake"}
	opts := plan.Options{
		LayoutRoot:   filepath.Join(root, "build"),
		PackageRoots: map[string]string{"app@1.0.0": root},
	}
	bp, err := plan.Plan(g, map[string]*manifest.Manifest{"app@1.0.0": m}, probe, opts)
	if err != nil {
		t.Fatalf("plan.Plan: %v", err)
	}
	return g, bp, root
}

func newTestExecutor(t *testing.T, driver *toolchain.Fake) (*Executor, string) {
	t.Helper()
	cacheRoot := t.TempDir()
	idx, err := cache.OpenIndex(cacheRoot)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	objects := cache.NewObjectCache(cacheRoot, idx)
	artifacts := cache.NewArtifactCache(cacheRoot, idx)
	bus := hooks.New(nil, hooks.NewMetrics(nil))

	e, err := New(context.Background(), driver, objects, artifacts, bus, Options{Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, cacheRoot
}

func TestRunSinglePackageBuildsAndLinks(t *testing.T) {
	g, bp, _ := singlePackagePlan(t)
	driver := toolchain.NewFake()
	e, _ := newTestExecutor(t, driver)

	summary, err := e.Run(context.Background(), g, bp)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed() {
		t.Fatalf("unexpected failure in summary: %+v", summary.Packages["app@1.0.0"])
	}
	if len(driver.CompileCalls) != 1 {
		t.Fatalf("CompileCalls = %d, want 1", len(driver.CompileCalls))
	}
	if len(driver.LinkCalls) != 1 {
		t.Fatalf("LinkCalls = %d, want 1", len(driver.LinkCalls))
	}

	outcome := summary.Packages["app@1.0.0"]
	if outcome.Compiles[0].CacheHit {
		t.Error("first build should be a cache miss")
	}
	if outcome.Link.CacheHit {
		t.Error("first link should be a cache miss")
	}
}

func TestRunSecondBuildHitsObjectAndArtifactCache(t *testing.T) {
	g, bp, _ := singlePackagePlan(t)
	driver := toolchain.NewFake()
	e, cacheRoot := newTestExecutor(t, driver)

	if _, err := e.Run(context.Background(), g, bp); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	firstCompileCalls := len(driver.CompileCalls)
	firstLinkCalls := len(driver.LinkCalls)

	// A second Executor sharing the same cache root, as a fresh process
	// restart would.
	idx, err := cache.OpenIndex(cacheRoot)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer idx.Close()
	objects := cache.NewObjectCache(cacheRoot, idx)
	artifacts := cache.NewArtifactCache(cacheRoot, idx)
	bus := hooks.New(nil, hooks.NewMetrics(nil))
	e2, err := New(context.Background(), driver, objects, artifacts, bus, Options{Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	summary, err := e2.Run(context.Background(), g, bp)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Failed() {
		t.Fatalf("unexpected failure: %+v", summary.Packages["app@1.0.0"])
	}
	if len(driver.CompileCalls) != firstCompileCalls {
		t.Errorf("expected no new Compile call on cache hit, CompileCalls went from %d to %d", firstCompileCalls, len(driver.CompileCalls))
	}
	if len(driver.LinkCalls) != firstLinkCalls {
		t.Errorf("expected no new Link call on cache hit, LinkCalls went from %d to %d", firstLinkCalls, len(driver.LinkCalls))
	}

	outcome := summary.Packages["app@1.0.0"]
	if !outcome.Compiles[0].CacheHit {
		t.Error("second build should be an object cache hit")
	}
	if !outcome.Link.CacheHit {
		t.Error("second build should be an artifact cache hit")
	}

	// And the object actually lands back on disk at the expected path.
	obj := bp.Packages["app@1.0.0"].CompileSteps[0].Object
	if _, err := os.Stat(obj); err != nil {
		t.Errorf("expected cached object written to %s: %v", obj, err)
	}
}

func TestRunPropagatesDependencyFailureAsSkip(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "base", "src", "base.cpp"), "void base() {}")
	writeFile(t, filepath.Join(root, "app", "src", "main.cpp"), "int main() {}")

	base := &manifest.Manifest{
		Name: "base", Version: version(t, "1.0.0"),
		Type: manifest.Library, Language: manifest.Cpp,
		Sources: []string{"src/**/*.cpp"},
	}
	app := &manifest.Manifest{
		Name: "app", Version: version(t, "1.0.0"),
		Type: manifest.Application, Language: manifest.Cpp,
		Sources: []string{"src/**/*.cpp"},
		Requires: map[string]string{"base": "^1.0.0"},
	}

	g, err := depgraph.New(
		[]depgraph.Package{
			{ID: "base@1.0.0", Name: "base", Version: base.Version, Manifest: base},
			{ID: "app@1.0.0", Name: "app", Version: app.Version, Manifest: app},
		},
		[]depgraph.Edge{{From: "base@1.0.0", To: "app@1.0.0"}},
	)
	if err != nil {
		t.Fatalf("depgraph.New: %v", err)
	}

	probe := toolchain.Probe{ID: "fake-1.0.0-x86_64-test", Family: "fake"}
	opts := plan.Options{
		LayoutRoot: filepath.Join(root, "build"),
		PackageRoots: map[string]string{
			"base@1.0.0": filepath.Join(root, "base"),
			"app@1.0.0":  filepath.Join(root, "app"),
		},
	}
	bp, err := plan.Plan(g, map[string]*manifest.Manifest{"base@1.0.0": base, "app@1.0.0": app}, probe, opts)
	if err != nil {
		t.Fatalf("plan.Plan: %v", err)
	}

	driver := toolchain.NewFake()
	driver.FailSources = map[string][]clyerr.Diagnostic{
		filepath.Join(root, "base", "src", "base.cpp"): {{Severity: "error", Message: "boom"}},
	}
	e, _ := newTestExecutor(t, driver)

	summary, err := e.Run(context.Background(), g, bp)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Failed() {
		t.Fatal("expected summary.Failed() to be true")
	}

	baseOutcome := summary.Packages["base@1.0.0"]
	if baseOutcome.Compiles[0].Err == nil {
		t.Error("expected base compile to fail")
	}

	appOutcome := summary.Packages["app@1.0.0"]
	if !appOutcome.Skipped {
		t.Error("expected app to be skipped after its dependency failed")
	}
	for _, call := range driver.CompileCalls {
		if call.Package == "app@1.0.0" {
			t.Error("app should never have been compiled once base failed")
		}
	}
}

func TestRunStepTimeoutKillsSlowStep(t *testing.T) {
	g, bp, _ := singlePackagePlan(t)
	driver := toolchain.NewFake()
	driver.ProbeResult.ID = "fake-1.0.0-x86_64-test"

	blocking := &blockingDriver{Fake: driver, delay: 50 * time.Millisecond}
	cacheRoot := t.TempDir()
	idx, err := cache.OpenIndex(cacheRoot)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer idx.Close()
	objects := cache.NewObjectCache(cacheRoot, idx)
	artifacts := cache.NewArtifactCache(cacheRoot, idx)
	bus := hooks.New(nil, hooks.NewMetrics(nil))

	e, err := New(context.Background(), blocking, objects, artifacts, bus, Options{Workers: 2, StepTimeout: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	summary, err := e.Run(context.Background(), g, bp)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	outcome := summary.Packages["app@1.0.0"]
	if outcome.Compiles[0].Err == nil {
		t.Fatal("expected a timeout error")
	}
	var timeout *clyerr.StepTimeout
	if !errors.As(outcome.Compiles[0].Err, &timeout) {
		t.Errorf("expected *clyerr.StepTimeout, got %T: %v", outcome.Compiles[0].Err, outcome.Compiles[0].Err)
	}
}

func TestRunAbortsOnCriticalHookFailure(t *testing.T) {
	g, bp, _ := singlePackagePlan(t)
	driver := toolchain.NewFake()

	cacheRoot := t.TempDir()
	idx, err := cache.OpenIndex(cacheRoot)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer idx.Close()
	objects := cache.NewObjectCache(cacheRoot, idx)
	artifacts := cache.NewArtifactCache(cacheRoot, idx)
	bus := hooks.New(nil, hooks.NewMetrics(nil))

	boom := errors.New("boom")
	bus.Subscribe(hooks.PreCompile, true, func(hooks.Event) { panic(boom) })

	e, err := New(context.Background(), driver, objects, artifacts, bus, Options{Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	summary, err := e.Run(context.Background(), g, bp)
	if err == nil {
		t.Fatal("expected Run to return an error when a critical hook fails")
	}
	var hookErr *clyerr.HookError
	if !errors.As(err, &hookErr) {
		t.Errorf("expected *clyerr.HookError, got %T: %v", err, err)
	}
	if len(driver.CompileCalls) != 0 {
		t.Errorf("expected no compiler invocation once the critical hook failed, got %d", len(driver.CompileCalls))
	}
	if summary == nil || !summary.Failed() {
		t.Error("expected summary.Failed() to be true")
	}
}

// blockingDriver wraps a Fake driver's Compile call with an artificial
// delay that respects ctx cancellation/deadline, so StepTimeout's
// context.WithTimeout layering can be exercised without a real
// compiler.
type blockingDriver struct {
	*toolchain.Fake
	delay time.Duration
}

func (b *blockingDriver) Compile(ctx context.Context, job toolchain.CompileJob) (toolchain.CompileResult, error) {
	select {
	case <-time.After(b.delay):
		return b.Fake.Compile(ctx, job)
	case <-ctx.Done():
		return toolchain.CompileResult{}, ctx.Err()
	}
}
