// Package plan computes a BuildPlan from a resolved dependency graph
// and a probed toolchain: per-package compile flags, include paths,
// CompileSteps (one per expanded source file), and a LinkStep.
//
// Flag and include-path ordering is significant and preserved exactly
// as assembled (global compiler-family defaults, then the manifest's
// own flags, then active variant overlays, then dependency-induced
// flags), mirroring the teacher's TaskGraph's insistence on a single
// deterministic build order rather than leaving the layering to map
// iteration.
package plan
