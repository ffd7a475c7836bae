// Package toolchain drives a C/C++ compiler and linker as isolated child
// processes: probing for its identity, compiling one translation unit at
// a time, and linking objects into a final artifact.
//
// Process isolation follows the teacher codebase's executor: an
// allowlist environment (never os.Environ()), a dedicated process group
// so cancellation can kill an entire compiler invocation (some compiler
// drivers themselves fork helper processes) rather than just its
// top-level pid, and captured stdout/stderr rather than inherited FDs.
package toolchain
