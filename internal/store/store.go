package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("conflict")
)

// User represents a registered user.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Message represents a persisted direct message.
type Message struct {
	ID        string
	Sender    string
	Recipient string
	Text      string
	File      string // stored attachment filename, empty when none
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	// Returns ErrConflict if the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers lists every registered user ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists msg and assigns its ID.
	// CreatedAt is set to the current time when zero.
	CreateMessage(ctx context.Context, msg *Message) error

	// ListConversation returns every message exchanged between a and b,
	// oldest first.
	ListConversation(ctx context.Context, a, b string) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
