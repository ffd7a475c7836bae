// Package exec drives a plan.BuildPlan to completion: a parallel
// worker pool sized by caller-provided concurrency, depth-staged
// across the dependency graph exactly as the teacher's dag.Executor
// stages TaskGraph dispatch by topological depth, generalized here
// from tasks to CompileSteps and LinkSteps.
//
// Cancellation does not kill an in-flight compiler or linker
// invocation; it only stops new steps from being scheduled, because a
// killed GCC-style process leaves a partial object file that would
// poison a future cache lookup. A per-step timeout, by contrast, does
// terminate its child process.
package exec
