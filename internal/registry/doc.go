// Package registry defines the capability the resolver uses to discover
// and fetch package versions, and an in-memory implementation used by
// tests and by local-path/vendored workflows.
//
// A real network-backed registry (e.g. over git or an HTTP index) is out
// of scope for this module; wiring one in is a matter of implementing
// Registry against a remote source.
package registry
