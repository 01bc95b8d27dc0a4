package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresence carries the current online snapshot.
	EventPresence EventKind = iota
	// EventMessage delivers a direct message to its recipient.
	EventMessage
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Online  []Presence // for EventPresence; shared between clients, read-only
	Message Message    // for EventMessage
}
