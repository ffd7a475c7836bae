package depgraph

import (
	"clydepm/internal/manifest"
	"clydepm/internal/semver"
)

// GraphHash is the deterministic identity of a Graph, stable across
// different insertion orders of packages and edges.
type GraphHash string

func (h GraphHash) String() string { return string(h) }

// PackageDefHash identifies a resolved package's declarative identity:
// name, version and the manifest's requirement set, independent of where in the
// dependency tree it was reached from.
type PackageDefHash string

func (h PackageDefHash) String() string { return string(h) }

// Edge represents a dependency relation: To depends on From. A directed
// edge From -> To means To can only be built after From's build
// (including its artifact link step) completes.
type Edge struct {
	From string // dependency package ID
	To   string // dependent package ID
}

// Package is one resolved node's input to graph construction: a single
// name@version selection with its manifest, keyed by an ID unique across
// the whole resolution (typically "name@version").
type Package struct {
	ID       string
	Name     string
	Version  semver.Version
	Manifest *manifest.Manifest
}

// Node is an immutable node in the Graph.
type Node struct {
	ID             string
	Package        Package
	DefinitionHash PackageDefHash
	canonicalIndex int
}

// CanonicalIndex returns the node's deterministic position in the
// graph's canonical ordering.
func (n *Node) CanonicalIndex() int { return n.canonicalIndex }
