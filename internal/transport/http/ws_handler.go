package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatnest-server/internal/core"
	"github.com/vovakirdan/chatnest-server/internal/proto"
	"github.com/vovakirdan/chatnest-server/internal/service/delivery"
	"github.com/vovakirdan/chatnest-server/internal/store"
)

// TokenCookie carries the session credential for browser clients.
const TokenCookie = "token"

// DefaultMaxMessageBytes bounds a single inbound frame.
const DefaultMaxMessageBytes = 10 << 20

// inboxSize bounds frames read but not yet routed. The reader blocks once it
// is full.
const inboxSize = 64

var errRateLimited = errors.New("rate limit exceeded")

// Verifier resolves a handshake credential to an identity.
type Verifier interface {
	Verify(token string) (core.Identity, error)
}

// MessageRouter persists and forwards a send request.
type MessageRouter interface {
	Route(ctx context.Context, senderID string, req delivery.Request) (*store.Message, error)
}

// WSConfig controls the per-connection session.
type WSConfig struct {
	OriginPatterns    []string
	MaxMessageBytes   int64
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	// RequireAuth closes connections whose credential fails verification.
	// Otherwise they stay open, receive presence, and cannot send.
	RequireAuth bool
	RateLimit   RateLimitConfig
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub      core.Hub
	verifier Verifier
	router   MessageRouter
	cfg      WSConfig
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub core.Hub, verifier Verifier, router MessageRouter, cfg WSConfig, logger *zerolog.Logger) *WSHandler {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return &WSHandler{
		hub:      hub,
		verifier: verifier,
		router:   router,
		cfg:      cfg,
		log:      logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := core.NewClient(uuid.NewString())
	log := h.log.With().Str("client_id", client.ID).Logger()
	h.hub.RegisterClient(client)

	hb := core.NewHeartbeat(conn, h.cfg.HeartbeatInterval, h.cfg.HeartbeatTimeout, func() {
		log.Info().Msg("heartbeat timed out, terminating connection")
		cancel()
		_ = conn.CloseNow()
	})

	var closeOnce sync.Once
	closeSession := func() {
		closeOnce.Do(func() {
			hb.Stop()
			h.hub.UnregisterClient(client)
		})
	}
	defer closeSession()

	// Reading and probing start while the session is still Connecting, so
	// pongs are consumed before authentication completes. The write loop
	// flushes the registration snapshot even if authentication closes the
	// connection.
	writeErr := make(chan error, 1)
	readErr := make(chan error, 1)
	inbox := make(chan proto.Inbound, inboxSize)
	go func() {
		writeErr <- h.writeLoop(ctx, conn, client, &log)
	}()
	go func() {
		err := h.readLoop(ctx, conn, inbox, &log)
		close(inbox)
		readErr <- err
	}()
	go hb.Run(ctx)

	senderID := ""
	sendLog := log
	identity, err := h.verifier.Verify(credentialFrom(r))
	switch {
	case err == nil:
		senderID = identity.ID
		sendLog = log.With().Str("user_id", identity.ID).Logger()
		h.hub.Authenticate(client, identity)
	case h.cfg.RequireAuth:
		log.Info().Err(err).Msg("rejecting unauthenticated connection")
		closeSession()
		<-writeErr
		conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		cancel()
		<-readErr
		return
	default:
		log.Debug().Err(err).Msg("connection stays unauthenticated")
	}

	// Routing runs apart from reading so a slow store never stalls pong
	// handling. It outlives the session context: frames already read are
	// still delivered after the peer goes away.
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		h.dispatchLoop(context.WithoutCancel(ctx), senderID, inbox, &sendLog)
	}()

	readDone := false
	select {
	case err = <-readErr:
		readDone = true
	case err = <-writeErr:
	}
	closeSession()

	if readDone {
		// Queued frames are routed before the close frame goes out.
		<-dispatched
		h.closeWith(conn, hb, err, &log)
		cancel()
		<-writeErr
		return
	}

	h.closeWith(conn, hb, err, &log)
	cancel()
	<-readErr
	<-dispatched
}

// closeWith sends the close frame matching the error that ended the session.
func (h *WSHandler) closeWith(conn *websocket.Conn, hb *core.Heartbeat, err error, log *zerolog.Logger) {
	if hb.State() == core.TimerFired {
		return
	}

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "closing")
	case errors.Is(err, errRateLimited):
		conn.Close(websocket.StatusPolicyViolation, errRateLimited.Error())
	case websocket.CloseStatus(err) != -1, errors.Is(err, io.EOF):
		// The peer closed first; the handshake was answered while reading.
	case errors.Is(err, core.ErrTransport):
		log.Info().Err(err).Msg("ws transport failure")
	default:
		log.Warn().Err(err).Msg("ws connection closed with error")
		conn.Close(websocket.StatusInternalError, "internal error")
	}
}

// readLoop parses inbound frames and queues them in arrival order.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, inbox chan<- proto.Inbound, log *zerolog.Logger) error {
	limiter := newRateLimiter(h.cfg.RateLimit)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("%w: read: %w", core.ErrTransport, err)
		}
		if !limiter.allow() {
			log.Warn().Msg("rate limit exceeded")
			return errRateLimited
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			log.Warn().Err(errors.Join(core.ErrMalformedFrame, err)).Int("bytes", len(data)).Msg("skipping inbound frame")
			continue
		}

		select {
		case inbox <- inbound:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// dispatchLoop routes queued frames one at a time until inbox is closed.
func (h *WSHandler) dispatchLoop(ctx context.Context, senderID string, inbox <-chan proto.Inbound, log *zerolog.Logger) {
	for inbound := range inbox {
		if _, err := h.router.Route(ctx, senderID, inboundToRequest(inbound)); err != nil {
			log.Warn().Err(err).Str("recipient", inbound.Recipient).Msg("message not delivered")
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			out := outboundFromEvent(event)
			if out == nil {
				continue
			}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				log.Debug().Err(err).Msg("write ws event")
				return fmt.Errorf("%w: write: %w", core.ErrTransport, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// credentialFrom takes the token cookie, falling back to a bearer header for
// non-browser clients.
func credentialFrom(r *stdhttp.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
