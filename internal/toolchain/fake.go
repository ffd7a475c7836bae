package toolchain

import (
	"context"
	"fmt"
	"os"

	"clydepm/internal/clyerr"
)

// Fake is an in-memory Driver used by tests for the build planner and
// executor: it never shells out, and records every job it was asked to
// run so tests can assert on invocation order and count.
type Fake struct {
	ProbeResult Probe
	ProbeErr    error

	// FailSources, keyed by source path, forces Compile to fail with the
	// given diagnostics instead of succeeding.
	FailSources map[string][]clyerr.Diagnostic
	// FailOutputs, keyed by link output path, forces Link to fail.
	FailOutputs map[string]string

	CompileCalls []CompileJob
	LinkCalls    []LinkJob
}

// NewFake returns a Fake driver reporting a fixed, deterministic probe
// identity.
func NewFake() *Fake {
	return &Fake{
		ProbeResult: Probe{ID: "fake-1.0.0-x86_64-test", Family: "fake", Version: "1.0.0", Target: "x86_64-test"},
	}
}

func (f *Fake) Probe(ctx context.Context) (Probe, error) {
	return f.ProbeResult, f.ProbeErr
}

func (f *Fake) Compile(ctx context.Context, job CompileJob) (CompileResult, error) {
	f.CompileCalls = append(f.CompileCalls, job)
	if diags, fail := f.FailSources[job.Source]; fail {
		return CompileResult{}, &clyerr.CompileError{Package: job.Package, Source: job.Source, Diagnostics: diags}
	}
	if err := os.WriteFile(job.Output, []byte(fmt.Sprintf("object:%s", job.Source)), 0o644); err != nil {
		return CompileResult{}, &clyerr.ToolchainError{Op: "compile", Msg: err.Error(), Err: err}
	}
	return CompileResult{ObjectPath: job.Output}, nil
}

func (f *Fake) Link(ctx context.Context, job LinkJob) (LinkResult, error) {
	f.LinkCalls = append(f.LinkCalls, job)
	if msg, fail := f.FailOutputs[job.Output]; fail {
		return LinkResult{}, &clyerr.LinkError{Package: job.Package, Output: job.Output, Msg: msg}
	}
	if err := os.WriteFile(job.Output, []byte(fmt.Sprintf("artifact:%d objects", len(job.Objects))), 0o644); err != nil {
		return LinkResult{}, &clyerr.ToolchainError{Op: "link", Msg: err.Error(), Err: err}
	}
	return LinkResult{ArtifactPath: job.Output}, nil
}
