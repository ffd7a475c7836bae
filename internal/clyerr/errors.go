package clyerr

import (
	"errors"
	"fmt"
)

// Class discriminates the taxonomy of §7.
type Class int

const (
	ClassUnknown Class = iota
	ClassManifest
	ClassResolve
	ClassPlan
	ClassCompile
	ClassLink
	ClassCache
	ClassToolchain
	ClassCancelled
	ClassConfig
	ClassHook
)

func (c Class) String() string {
	switch c {
	case ClassManifest:
		return "Manifest"
	case ClassResolve:
		return "Resolve"
	case ClassPlan:
		return "Plan"
	case ClassCompile:
		return "Compile"
	case ClassLink:
		return "Link"
	case ClassCache:
		return "Cache"
	case ClassToolchain:
		return "Toolchain"
	case ClassCancelled:
		return "Cancelled"
	case ClassConfig:
		return "Config"
	case ClassHook:
		return "Hook"
	default:
		return "Unknown"
	}
}

// ManifestError reports a manifest syntax, missing-field, or malformed
// constraint problem. The resolver returns a dependency manifest's
// ManifestError to its caller unwrapped.
type ManifestError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ManifestError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("manifest error (%s): %s", e.Path, e.Msg)
	}
	return fmt.Sprintf("manifest error: %s", e.Msg)
}
func (e *ManifestError) Unwrap() error { return e.Err }

// ResolveErrorCode enumerates the fatal resolver failure kinds of §4.B.
type ResolveErrorCode string

const (
	NoCompatibleVersion ResolveErrorCode = "NoCompatibleVersion"
	VersionConflict     ResolveErrorCode = "VersionConflict"
	CircularDependency  ResolveErrorCode = "CircularDependency"
	FetchFailed         ResolveErrorCode = "FetchFailed"
)

// ResolveError is always fatal and carries the requirement chain from root
// so a tool can render an actionable diagnostic.
type ResolveError struct {
	Code    ResolveErrorCode
	Package string
	Path    []string // provenance chain from root to the offending requirement
	Msg     string
	Err     error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve error [%s] for %q: %s (path: %v)", e.Code, e.Package, e.Msg, e.Path)
}
func (e *ResolveError) Unwrap() error { return e.Err }

// PlanErrorCode enumerates the fatal build-planner failure kinds of §4.C.
type PlanErrorCode string

const (
	EmptySources            PlanErrorCode = "EmptySources"
	MissingIncludeDirectory PlanErrorCode = "MissingIncludeDirectory"
	UnsupportedCompilerFam  PlanErrorCode = "UnsupportedCompilerFamily"
)

type PlanError struct {
	Code    PlanErrorCode
	Package string
	Msg     string
	Err     error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan error [%s] for %q: %s", e.Code, e.Package, e.Msg)
}
func (e *PlanError) Unwrap() error { return e.Err }

// Diagnostic is a single structured compiler diagnostic, per §4.D's
// ToolchainDriver contract.
type Diagnostic struct {
	Severity string // "error", "warning", "note"
	File     string
	Line     int
	Column   int
	Flag     string
	Message  string
}

// CompileError aggregates the diagnostics of severity >= error for one
// CompileStep.
type CompileError struct {
	Package     string
	Source      string
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error in %s (%s): %d diagnostic(s)", e.Package, e.Source, len(e.Diagnostics))
}

// LinkError captures unresolved-symbol and other linker failures as-is.
type LinkError struct {
	Package string
	Output  string
	Msg     string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link error for %s -> %s: %s", e.Package, e.Output, e.Msg)
}

// CacheErrorCode enumerates the recoverable cache failure kinds of §4.D/§7.
type CacheErrorCode string

const (
	ReadFailure  CacheErrorCode = "ReadFailure"
	WriteFailure CacheErrorCode = "WriteFailure"
	CorruptEntry CacheErrorCode = "CorruptEntry"
)

// CacheError is always recovered locally by the caller: ReadFailure is
// downgraded to a miss, WriteFailure is logged and non-fatal, CorruptEntry
// causes the offending entry to be purged and treated as a miss.
type CacheError struct {
	Code CacheErrorCode
	Key  string
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error [%s] for key %s: %v", e.Code, e.Key, e.Err)
}
func (e *CacheError) Unwrap() error { return e.Err }

// ToolchainError reports a probe failure, missing child process, or
// signal-terminated compiler/linker invocation. Always fatal.
type ToolchainError struct {
	Op  string // "probe", "compile", "link"
	Msg string
	Err error
}

func (e *ToolchainError) Error() string {
	return fmt.Sprintf("toolchain error during %s: %s", e.Op, e.Msg)
}
func (e *ToolchainError) Unwrap() error { return e.Err }

// ConfigError reports a malformed flag, environment variable, or
// .clydepm.yml value discovered while resolving a RunConfig. Always
// fatal, and always surfaced before any other package runs.
type ConfigError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error (%s): %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("config error: %s", e.Msg)
}
func (e *ConfigError) Unwrap() error { return e.Err }

// Cancelled reports a user-initiated cancellation. It is surfaced as a
// non-zero but distinct outcome, never conflated with a build failure.
type Cancelled struct {
	Reason string
}

func (e *Cancelled) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cancelled: %s", e.Reason)
	}
	return "cancelled"
}

// StepTimeout reports a CompileStep or LinkStep whose per-step timeout
// elapsed before the child process exited. Distinct from Cancelled:
// a timeout does terminate the child process, where a plain
// cancellation lets any in-flight step finish.
type StepTimeout struct {
	PackageID string
	Step      string // "compile" or "link"
	Target    string // source path or artifact output path
}

func (e *StepTimeout) Error() string {
	return fmt.Sprintf("%s step timed out for %s (%s)", e.Step, e.PackageID, e.Target)
}

// HookError reports a critical subscriber's failure at a Hook Bus
// point. Per §4.E, a critical subscription's failure aborts the build
// unconditionally, unlike a compile or link failure, which only stops
// scheduling when the caller set FailFast.
type HookError struct {
	Point     string
	PackageID string
	Err       error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("critical hook failed at %s for %s: %v", e.Point, e.PackageID, e.Err)
}
func (e *HookError) Unwrap() error { return e.Err }

// Classify maps err onto the taxonomy's Class and reports whether the
// underlying operation may be safely retried/resumed. An error not
// recognized as one of the typed kinds above is classified Unknown and
// treated as resumable, the most conservative default.
func Classify(err error) (Class, bool) {
	if err == nil {
		return ClassUnknown, false
	}

	var manifestErr *ManifestError
	if errors.As(err, &manifestErr) {
		return ClassManifest, false
	}
	var resolveErr *ResolveError
	if errors.As(err, &resolveErr) {
		return ClassResolve, false
	}
	var planErr *PlanError
	if errors.As(err, &planErr) {
		return ClassPlan, false
	}
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return ClassCompile, true
	}
	var linkErr *LinkError
	if errors.As(err, &linkErr) {
		return ClassLink, true
	}
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return ClassCache, true
	}
	var toolchainErr *ToolchainError
	if errors.As(err, &toolchainErr) {
		return ClassToolchain, false
	}
	var cancelled *Cancelled
	if errors.As(err, &cancelled) {
		return ClassCancelled, false
	}
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return ClassConfig, false
	}
	var timeoutErr *StepTimeout
	if errors.As(err, &timeoutErr) {
		return ClassToolchain, true
	}
	var hookErr *HookError
	if errors.As(err, &hookErr) {
		return ClassHook, false
	}

	return ClassUnknown, true
}

// ExitCode maps err onto the exit codes fixed by §6: 0 success, 1 generic
// failure, 2 invalid manifest or arguments, 3 build failure (compile/link),
// 4 resolver failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	class, _ := Classify(err)
	switch class {
	case ClassManifest, ClassConfig:
		return 2
	case ClassResolve:
		return 4
	case ClassCompile, ClassLink:
		return 3
	default:
		return 1
	}
}
