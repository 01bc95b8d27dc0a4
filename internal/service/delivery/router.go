package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vincent-petithory/dataurl"

	"github.com/vovakirdan/chatnest-server/internal/blob"
	"github.com/vovakirdan/chatnest-server/internal/core"
	"github.com/vovakirdan/chatnest-server/internal/store"
)

// BlobWriter persists attachment bytes.
type BlobWriter interface {
	Write(ctx context.Context, name string, data []byte) error
}

// Forwarder pushes a persisted message to the recipient's live connections.
type Forwarder interface {
	Deliver(msg core.Message)
}

// Publisher announces persisted messages to external consumers.
type Publisher interface {
	Publish(ctx context.Context, msg *store.Message) error
}

// Attachment is an uploaded file carried as a data URL.
type Attachment struct {
	Name string
	Data string
}

// Request is one send request from an authenticated connection.
type Request struct {
	Recipient string
	Text      string
	File      *Attachment
}

// Router persists messages and forwards them to live recipients.
// Delivery is store-then-push: a message is durable before any push happens,
// and an offline recipient only means zero pushes.
type Router struct {
	messages  store.MessageStore
	blobs     BlobWriter
	hub       Forwarder
	publisher Publisher
	log       *zerolog.Logger
	now       func() time.Time
}

// New builds a router. logger may be nil.
func New(messages store.MessageStore, blobs BlobWriter, hub Forwarder, logger *zerolog.Logger) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{
		messages: messages,
		blobs:    blobs,
		hub:      hub,
		log:      logger,
		now:      time.Now,
	}
}

// WithPublisher sets an optional publisher notified after each persisted message.
func (r *Router) WithPublisher(p Publisher) *Router {
	r.publisher = p
	return r
}

// Route persists and forwards one message from senderID.
//
// Requests without a sender, without a recipient, or with neither text nor a
// file are dropped and return (nil, nil). A file that cannot be decoded
// returns core.ErrMalformedFrame; a failed blob or store write returns
// core.ErrIO. In both cases nothing is persisted.
func (r *Router) Route(ctx context.Context, senderID string, req Request) (*store.Message, error) {
	if senderID == "" || req.Recipient == "" || (req.Text == "" && req.File == nil) {
		r.log.Debug().
			Str("sender", senderID).
			Str("recipient", req.Recipient).
			Msg("dropping incomplete message")
		return nil, nil
	}

	msg := &store.Message{
		Sender:    senderID,
		Recipient: req.Recipient,
		Text:      req.Text,
		CreatedAt: r.now(),
	}

	if req.File != nil {
		name, err := r.storeAttachment(ctx, req.File)
		if err != nil {
			return nil, err
		}
		msg.File = name
	}

	if err := r.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: persist message: %w", core.ErrIO, err)
	}

	r.hub.Deliver(toCore(msg))

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, msg); err != nil {
			r.log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to publish message event")
		}
	}

	r.log.Debug().
		Str("message_id", msg.ID).
		Str("sender", msg.Sender).
		Str("recipient", msg.Recipient).
		Bool("has_file", msg.File != "").
		Msg("message routed")

	return msg, nil
}

func (r *Router) storeAttachment(ctx context.Context, file *Attachment) (string, error) {
	decoded, err := dataurl.DecodeString(file.Data)
	if err != nil {
		return "", fmt.Errorf("%w: decode attachment %q: %w", core.ErrMalformedFrame, file.Name, err)
	}

	name := blob.NewName(file.Name)
	if err := r.blobs.Write(ctx, name, decoded.Data); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrIO, err)
	}

	r.log.Debug().Str("file", name).Int("bytes", len(decoded.Data)).Msg("attachment stored")
	return name, nil
}

func toCore(msg *store.Message) core.Message {
	return core.Message{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		Text:      msg.Text,
		File:      msg.File,
		CreatedAt: msg.CreatedAt,
	}
}
