// Package hooks implements the Hook Bus: a typed pub-sub over the
// stable taxonomy of build-lifecycle points, plus the prometheus
// counters/histograms an external collaborator can scrape.
//
// Subscribers are pure observers registered before execution begins;
// they receive an Event they cannot mutate the plan through. A
// subscriber's panic is caught and logged, exactly
// as the teacher's trace.SafeRecord guarantees a sink can never bring
// down the caller — except when the subscription was registered
// critical, in which case the failure aborts the build.
package hooks
