package toolchain

import (
	"context"
)

// Probe identifies a toolchain: which compiler family it is, what
// version, and what target triple it builds for. The build planner uses
// Probe.Family to select flag sets, and the executor uses Probe.ID to
// seed the cache key so a toolchain upgrade invalidates every cached
// object built with the old one.
type Probe struct {
	ID      string // stable identity, e.g. "gcc-13.2.0-x86_64-linux-gnu"
	Family  string // "gcc", "clang"
	Version string
	Target  string
}

// CompileJob is one translation unit to compile.
type CompileJob struct {
	Package     string
	Source      string
	Output      string
	IncludeDirs []string
	Flags       []string
	WorkingDir  string
}

// CompileResult is a successful compilation's output.
type CompileResult struct {
	ObjectPath string
	// Includes lists the prerequisites from the compiler's dependency-file
	// output: the source file itself followed by every header it read.
	// The executor stores it beside the cached object; object cache keys
	// are computed from the include directories' headers, not from it.
	Includes []string
}

// LinkJob is one artifact's link step.
type LinkJob struct {
	Package    string
	Objects    []string
	Output     string
	Flags      []string
	WorkingDir string
	// Kind is "static", "shared" or "executable"; drivers translate this
	// into the flags appropriate to their family.
	Kind string
}

// LinkResult is a successful link step's output.
type LinkResult struct {
	ArtifactPath string
}

// Driver is the capability the build planner and executor use to run a
// concrete compiler/linker toolchain.
type Driver interface {
	Probe(ctx context.Context) (Probe, error)
	Compile(ctx context.Context, job CompileJob) (CompileResult, error)
	Link(ctx context.Context, job LinkJob) (LinkResult, error)
}

// normalizeSeverity classifies a raw diagnostic severity token into
// the clyerr.Diagnostic Severity vocabulary. Compilers vary in exact
// wording ("error", "fatal error", "warning") so this normalizes them.
func normalizeSeverity(raw string) string {
	switch raw {
	case "error", "fatal error":
		return "error"
	case "warning":
		return "warning"
	case "note":
		return "note"
	default:
		return raw
	}
}
