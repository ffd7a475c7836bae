// Package manifest parses and validates package manifests: the declarative
// document at <package>/package.yml (or the legacy config.yaml alias) that
// names a package, its version, type, source layout, compiler flags and
// dependency requirements.
package manifest
