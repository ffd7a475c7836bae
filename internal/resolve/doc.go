// Package resolve implements dependency resolution: starting from a root
// manifest, it walks the "requires" graph, selects a single version per
// package name that satisfies every constraint reached so far, and
// assembles the result into a depgraph.Graph ready for the build
// planner.
//
// Resolution is a single forward pass with no backtracking, grounded on
// the teacher pack's simple recursive dependency walk and the version
// selection rule of the original implementation's VersionResolver:
// among the versions satisfying a package's accumulated constraint,
// pick the greatest by semantic-version precedence (which already
// ranks a stable release above any prerelease of the same base
// version). A package whose constraint set narrows after it has
// already been selected, such that its selected version no longer
// satisfies the narrowed set, is a VersionConflict — this resolver does
// not backtrack and try an earlier version.
package resolve
