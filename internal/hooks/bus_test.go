package hooks

import (
	"errors"
	"testing"
)

func TestEmitDeliversToRegisteredSubscribers(t *testing.T) {
	b := New(nil, nil)

	var got []Event
	b.Subscribe(PreCompile, false, func(e Event) {
		got = append(got, e)
	})

	if err := b.Emit(Event{Point: PreCompile, PackageID: "foo@1.0.0"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].PackageID != "foo@1.0.0" {
		t.Errorf("PackageID = %q", got[0].PackageID)
	}
	if got[0].RunID != b.RunID() {
		t.Errorf("RunID = %q, want %q", got[0].RunID, b.RunID())
	}
}

func TestEmitIgnoresOtherPoints(t *testing.T) {
	b := New(nil, nil)
	called := false
	b.Subscribe(PreCompile, false, func(Event) { called = true })

	if err := b.Emit(Event{Point: PostCompile}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if called {
		t.Error("subscriber for a different Point was called")
	}
}

func TestEmitRecoversFromPanic(t *testing.T) {
	b := New(nil, nil)
	b.Subscribe(PreBuild, false, func(Event) { panic("boom") })

	if err := b.Emit(Event{Point: PreBuild}); err != nil {
		t.Fatalf("non-critical panicking subscriber should not fail Emit, got %v", err)
	}
}

func TestEmitCriticalSubscriberFailureAbortsBuild(t *testing.T) {
	b := New(nil, nil)
	b.Subscribe(PreBuild, true, func(Event) { panic(errors.New("fatal setup error")) })

	err := b.Emit(Event{Point: PreBuild})
	if err == nil {
		t.Fatal("expected error from critical subscriber failure")
	}
}

func TestEmitContinuesPastNonCriticalFailureToLaterSubscribers(t *testing.T) {
	b := New(nil, nil)
	b.Subscribe(PreBuild, false, func(Event) { panic("first fails") })

	secondCalled := false
	b.Subscribe(PreBuild, false, func(Event) { secondCalled = true })

	if err := b.Emit(Event{Point: PreBuild}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !secondCalled {
		t.Error("second subscriber was not invoked after the first panicked")
	}
}

func TestRunIDIsStableAcrossEmits(t *testing.T) {
	b := New(nil, nil)
	id1 := b.RunID()
	_ = b.Emit(Event{Point: PreBuild})
	id2 := b.RunID()
	if id1 != id2 {
		t.Errorf("RunID changed across emits: %q != %q", id1, id2)
	}
}
