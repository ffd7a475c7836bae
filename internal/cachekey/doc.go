// Package cachekey computes the content-addressed keys used by the build
// cache: a length-prefixed canonical serialization of a build step's
// inputs, hashed with SHA-256, in the same shape the task hasher in the
// teacher codebase uses for its task hashes.
//
// A one-byte format version is the first field hashed into every key so a
// future change to the
// serialization can coexist with keys computed by an older binary
// without silently colliding.
package cachekey
