package core

import "sync/atomic"

// State is the lifecycle stage of a client connection.
type State int32

const (
	// StateConnecting means the transport is open but the identity is unknown.
	StateConnecting State = iota
	// StateAuthenticated means the identity is bound and registered as online.
	StateAuthenticated
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Identity is an authenticated end user.
type Identity struct {
	ID       string
	Username string
}

// Client is one live connection as seen by the core layer.
// Identity and state are written only by the hub goroutine.
type Client struct {
	ID     string
	Events chan *Event

	identity atomic.Pointer[Identity]
	state    atomic.Int32
}

// NewClient constructs a client in the connecting state.
func NewClient(id string) *Client {
	return &Client{
		ID:     id,
		Events: make(chan *Event, 32),
	}
}

// Identity returns the bound identity, or nil before authentication.
func (c *Client) Identity() *Identity {
	return c.identity.Load()
}

// State returns the current lifecycle stage.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// push enqueues an event without blocking; slow consumers lose the event.
func (c *Client) push(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
