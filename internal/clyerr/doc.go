// Package clyerr defines the error taxonomy shared across the resolver,
// build planner, cache, toolchain driver and executor.
//
// Every error kind is a concrete struct implementing error and Unwrap, in
// the same shape the recovery/state failure classifier in the teacher
// codebase uses: a typed struct per class, classified via errors.As rather
// than string matching or sentinel comparison. An unrecognized error
// defaults to the most conservative class (System, resumable) so that a
// caller wrapping a foreign error never silently treats it as benign.
package clyerr
