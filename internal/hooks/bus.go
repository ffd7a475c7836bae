package hooks

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Event is the immutable payload delivered to a subscriber. Only the
// fields relevant to Point are populated; the rest are left at their
// zero value.
type Event struct {
	Point     Point
	RunID     string
	PackageID string
	Step      any // CompileStep or LinkStep, for the Pre*/Post* execution points
	Result    any // the step's outcome for PostCompile/PostLink, or the build summary for PostBuild
	Err       error
}

// Handler observes one Event. It must not retain Step/Result beyond
// the call, since the Bus makes no copy guarantee beyond the call's
// duration.
type Handler func(Event)

type subscription struct {
	handler  Handler
	critical bool
}

// Bus is a typed pub-sub over the build lifecycle's stable Point
// taxonomy. Subscriptions must be registered before Emit is first
// called for a given Point; the Bus does not support unsubscribing.
type Bus struct {
	mu     sync.Mutex
	subs   map[Point][]subscription
	logger *log.Logger
	runID  string

	Metrics *Metrics
}

// New returns a Bus with a freshly generated RunID. logger and
// metrics may both be nil.
func New(logger *log.Logger, metrics *Metrics) *Bus {
	return &Bus{
		subs:    make(map[Point][]subscription),
		logger:  logger,
		runID:   uuid.NewString(),
		Metrics: metrics,
	}
}

// RunID returns the identifier correlating every event this Bus emits.
func (b *Bus) RunID() string { return b.runID }

// Subscribe registers handler against point. A critical subscription's
// failure (panic or otherwise) aborts the build; a non-critical one is
// logged and swallowed.
func (b *Bus) Subscribe(point Point, critical bool, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[point] = append(b.subs[point], subscription{handler: handler, critical: critical})
}

// Emit delivers event (with RunID filled in) to every subscriber of
// event.Point, in registration order. It returns the first critical
// subscriber's failure, if any; non-critical failures are logged and
// do not stop delivery to the remaining subscribers.
func (b *Bus) Emit(event Event) error {
	event.RunID = b.runID

	b.mu.Lock()
	subs := make([]subscription, len(b.subs[event.Point]))
	copy(subs, b.subs[event.Point])
	b.mu.Unlock()

	var firstCriticalErr error
	for _, sub := range subs {
		if err := b.invoke(sub, event); err != nil {
			b.logf("hook failed during %s: %v", event.Point, err)
			if sub.critical && firstCriticalErr == nil {
				firstCriticalErr = fmt.Errorf("hook failed during %s: %w", event.Point, err)
			}
		}
	}
	return firstCriticalErr
}

// invoke calls sub.handler, converting a panic into an error so a
// misbehaving subscriber can never bring down the caller.
func (b *Bus) invoke(sub subscription, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	sub.handler(event)
	return nil
}

func (b *Bus) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(fmt.Sprintf(format, args...))
	}
}
