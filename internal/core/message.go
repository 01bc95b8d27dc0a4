package core

import "time"

// Message is a persisted direct message as seen by the core layer.
type Message struct {
	ID        string
	Sender    string
	Recipient string
	Text      string
	File      string // stored filename, empty when there is no attachment
	CreatedAt time.Time
}
