package poller

import "roomwatch/internal/session"

// EventKind classifies poller lifecycle notifications.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	EventCount
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventCount:
		return "count"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered on the poller's event channel. Count carries the fresh
// count for EventCount; Err is set for EventError; Resumed marks a start
// that restored a previous run after a restart.
type Event struct {
	Session string
	Kind    EventKind
	Count   session.Count
	Err     error
	Resumed bool
	RunID   string
}
