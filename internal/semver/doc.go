// Package semver implements parsing, formatting and comparison of package
// versions and version constraints.
//
// A Version is a (major, minor, patch) triple with optional prerelease and
// build-metadata strings, totally ordered by semantic-version precedence.
// A Constraint is one of a fixed set of variants (Exact, Caret, Tilde,
// GreaterOrEqual, LessThan, Range, GitRef, LocalPath) modeled as a tagged
// union rather than a dynamic map, per the manifest's polymorphic
// requirement fields.
package semver
