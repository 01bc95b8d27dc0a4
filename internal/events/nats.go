// Package events publishes persisted messages to NATS for out-of-process
// consumers such as notification workers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatnest-server/internal/store"
)

// DefaultSubject is the subject prefix; the recipient id is appended.
const DefaultSubject = "chatnest.messages"

// MessageEvent is the payload published for each stored message.
type MessageEvent struct {
	ID        string    `json:"_id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Text      string    `json:"text,omitempty"`
	File      string    `json:"file,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher implements delivery.Publisher over a core NATS connection.
type NATSPublisher struct {
	nc      *nats.Conn
	pub     publisher
	subject string
	log     *zerolog.Logger
}

// Connect dials url and returns a publisher for subject.
func Connect(url, subject string, logger *zerolog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	nc, err := nats.Connect(url,
		nats.Name("chatnest"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	p := newPublisher(nc, subject, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(pub publisher, subject string, logger *zerolog.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NATSPublisher{pub: pub, subject: subject, log: logger}
}

// Subject returns the subject a message for recipient is published on.
func (p *NATSPublisher) Subject(recipient string) string {
	return p.subject + "." + recipient
}

// Publish sends msg on <subject>.<recipient>.
func (p *NATSPublisher) Publish(ctx context.Context, msg *store.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg == nil || msg.Recipient == "" {
		return errors.New("publish: message without recipient")
	}

	data, err := json.Marshal(MessageEvent{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		Text:      msg.Text,
		File:      msg.File,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal message event: %w", err)
	}

	if err := p.pub.Publish(p.Subject(msg.Recipient), data); err != nil {
		return fmt.Errorf("publish message event: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
