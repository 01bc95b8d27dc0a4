package core

import (
	"context"

	"github.com/rs/zerolog"
)

// Hub coordinates live clients and presence.
type Hub interface {
	// Run processes hub commands until ctx is cancelled.
	Run(ctx context.Context)
	// RegisterClient adds a connecting client and sends it the current snapshot.
	RegisterClient(c *Client)
	// Authenticate binds an identity to a registered client and broadcasts presence.
	Authenticate(c *Client, id Identity)
	// UnregisterClient closes a client. Repeated calls are no-ops.
	UnregisterClient(c *Client)
	// Deliver forwards a persisted message to every live client of its recipient.
	Deliver(msg Message)
	// Online returns the current presence snapshot.
	Online(ctx context.Context) ([]Presence, error)
}

// PresenceSink observes presence snapshots. Implementations must not block.
type PresenceSink interface {
	PresenceChanged(snapshot []Presence)
}

type authRequest struct {
	client   *Client
	identity Identity
}

// hub is the single goroutine that owns the registry and the client sets.
type hub struct {
	register     chan *Client
	unregister   chan *Client
	authenticate chan authRequest
	deliver      chan Message
	online       chan chan []Presence
	done         chan struct{}

	clients    map[*Client]struct{}
	byIdentity map[string]map[*Client]struct{}
	registry   *Registry

	sink PresenceSink
	log  *zerolog.Logger
}

// NewHub creates a hub. logger and sink may be nil.
func NewHub(logger *zerolog.Logger, sink PresenceSink) Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &hub{
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		authenticate: make(chan authRequest),
		deliver:      make(chan Message, 64),
		online:       make(chan chan []Presence),
		done:         make(chan struct{}),
		clients:      make(map[*Client]struct{}),
		byIdentity:   make(map[string]map[*Client]struct{}),
		registry:     NewRegistry(),
		sink:         sink,
		log:          logger,
	}
}

func (h *hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.handleRegister(c)
		case req := <-h.authenticate:
			h.handleAuthenticate(req.client, req.identity)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case msg := <-h.deliver:
			h.handleDeliver(msg)
		case reply := <-h.online:
			reply <- h.registry.Snapshot()
		}
	}
}

func (h *hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *hub) Authenticate(c *Client, id Identity) {
	select {
	case h.authenticate <- authRequest{client: c, identity: id}:
	case <-h.done:
	}
}

func (h *hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *hub) Deliver(msg Message) {
	select {
	case h.deliver <- msg:
	case <-h.done:
	}
}

func (h *hub) Online(ctx context.Context) ([]Presence, error) {
	reply := make(chan []Presence, 1)
	select {
	case h.online <- reply:
	case <-h.done:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *hub) handleRegister(c *Client) {
	if _, exists := h.clients[c]; exists {
		return
	}
	c.setState(StateConnecting)
	h.clients[c] = struct{}{}
	c.push(&Event{Kind: EventPresence, Online: h.registry.Snapshot()})
	h.log.Debug().Str("client_id", c.ID).Int("clients", len(h.clients)).Msg("client registered")
}

func (h *hub) handleAuthenticate(c *Client, id Identity) {
	if _, exists := h.clients[c]; !exists {
		// Closed before verification finished.
		return
	}
	if c.State() == StateAuthenticated {
		return
	}

	identity := id
	c.identity.Store(&identity)
	c.setState(StateAuthenticated)

	conns := h.byIdentity[id.ID]
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.byIdentity[id.ID] = conns
	}
	conns[c] = struct{}{}
	h.registry.Set(id.ID, id.Username)

	h.log.Info().
		Str("client_id", c.ID).
		Str("user_id", id.ID).
		Str("username", id.Username).
		Int("connections", len(conns)).
		Msg("client authenticated")

	h.broadcastPresence()
}

func (h *hub) handleUnregister(c *Client) {
	if _, exists := h.clients[c]; !exists {
		return
	}
	delete(h.clients, c)
	c.setState(StateClosed)
	close(c.Events)

	id := c.Identity()
	if id == nil {
		h.log.Debug().Str("client_id", c.ID).Msg("unauthenticated client closed")
		return
	}

	conns := h.byIdentity[id.ID]
	delete(conns, c)
	if len(conns) > 0 {
		h.log.Debug().Str("client_id", c.ID).Str("user_id", id.ID).Int("connections", len(conns)).Msg("client closed, identity still online")
		return
	}
	delete(h.byIdentity, id.ID)
	h.registry.Remove(id.ID)

	h.log.Info().Str("client_id", c.ID).Str("user_id", id.ID).Msg("identity offline")
	h.broadcastPresence()
}

func (h *hub) handleDeliver(msg Message) {
	delivered := 0
	for c := range h.byIdentity[msg.Recipient] {
		if c.push(&Event{Kind: EventMessage, Message: msg}) {
			delivered++
		} else {
			h.log.Warn().Str("client_id", c.ID).Str("message_id", msg.ID).Msg("client buffer full, delivery dropped")
		}
	}
	h.log.Debug().
		Str("message_id", msg.ID).
		Str("recipient", msg.Recipient).
		Int("delivered", delivered).
		Msg("message forwarded")
}

// broadcastPresence sends the snapshot to every registered client,
// authenticated or not.
func (h *hub) broadcastPresence() {
	snapshot := h.registry.Snapshot()
	ev := &Event{Kind: EventPresence, Online: snapshot}
	for c := range h.clients {
		if !c.push(ev) {
			h.log.Warn().Str("client_id", c.ID).Msg("client buffer full, presence dropped")
		}
	}
	if h.sink != nil {
		h.sink.PresenceChanged(snapshot)
	}
}

func (h *hub) shutdown() {
	for c := range h.clients {
		c.setState(StateClosed)
		close(c.Events)
	}
	clear(h.clients)
	clear(h.byIdentity)
	h.log.Info().Int("online", h.registry.Len()).Msg("hub stopped")
}
