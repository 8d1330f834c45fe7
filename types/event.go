package types

// EventKind is one of the four subscriber event kinds.
type EventKind string

const (
	// EventDelta carries an incremental text fragment.
	EventDelta EventKind = "delta"
	// EventComplete carries the final aggregate text. Terminal.
	EventComplete EventKind = "complete"
	// EventError carries a structured failure. Terminal.
	EventError EventKind = "error"
	// EventCancelled signals supersession. Terminal, no payload.
	EventCancelled EventKind = "cancelled"
)

// Event is a single notification pushed to a request subscriber.
// Exactly one terminal event ends every subscription.
type Event struct {
	Kind EventKind `json:"kind"`
	Text string    `json:"text,omitempty"`
	Err  *Error    `json:"error,omitempty"`

	// Generation is the per-session generation number of the request
	// that produced this event. The interactive surface discards
	// events whose generation is older than its latest dispatch.
	Generation uint64 `json:"generation"`
}

// Terminal reports whether the event ends the subscription.
func (e Event) Terminal() bool {
	return e.Kind != EventDelta
}
