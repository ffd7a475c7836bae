// Package depgraph models the resolved dependency graph produced by the
// resolver and consumed by the build planner: an immutable, validated DAG
// over resolved packages, canonically ordered and content-hashed.
//
// This generalizes the teacher codebase's task DAG (internal/dag) from
// scheduling arbitrary tasks to scheduling package builds: a node is a
// resolved package@version rather than a task definition, and an edge
// From -> To still means "To depends on From" — To can only be built
// after From's build completes.
package depgraph
