package dispatch

import "github.com/BaSui01/textflow/types"

// subscriberBuffer is sized so a burst of deltas never blocks the owner
// task. One slot is always reserved for the terminal event, so a
// subscriber that stops reading loses deltas but never its terminal.
const subscriberBuffer = 64

// Subscription is one caller's view of a dispatched request.
// The event channel delivers zero or more deltas followed by exactly one
// terminal event (complete, error, or cancelled), then closes.
type Subscription struct {
	fingerprint types.Fingerprint
	generation  uint64
	events      chan types.Event
	cancel      func()
}

// Events returns the ordered event channel.
func (s *Subscription) Events() <-chan types.Event {
	return s.events
}

// Fingerprint identifies the underlying unit of work.
func (s *Subscription) Fingerprint() types.Fingerprint {
	return s.fingerprint
}

// Generation is this request's per-session generation number. The
// interactive surface discards events from stale generations, since an
// old task may still produce output briefly after being superseded.
func (s *Subscription) Generation() uint64 {
	return s.generation
}

// Cancel detaches this subscriber. The upstream call is cancelled only
// when no other subscriber remains attached to it.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// subscriber is the dispatcher-side state of a Subscription.
type subscriber struct {
	sessionID  string
	generation uint64
	events     chan types.Event
	closed     bool
}

// sendDelta forwards a delta, dropping it if the subscriber stopped
// reading; the reserved slot keeps the terminal event deliverable.
func (s *subscriber) sendDelta(text string) {
	if s.closed {
		return
	}
	if len(s.events) >= cap(s.events)-1 {
		return
	}
	s.events <- types.Event{Kind: types.EventDelta, Text: text, Generation: s.generation}
}

// sendTerminal delivers the terminal event and closes the channel.
func (s *subscriber) sendTerminal(ev types.Event) {
	if s.closed {
		return
	}
	s.closed = true
	ev.Generation = s.generation
	s.events <- ev
	close(s.events)
}
