package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User is the minimal view of a marketplace account the relay needs.
type User struct {
	ID        int64
	Username  string
	CreatedAt time.Time
}

// Message represents a persisted chat message between two users about a listing.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	ContextID  string // listing the conversation is about
	Body       string
	Attachment string // object storage reference, empty when absent
	IsRead     bool
	CreatedAt  time.Time
}

// NewMessage carries the fields a caller supplies when persisting a message.
type NewMessage struct {
	SenderID   int64
	ReceiverID int64
	ContextID  string
	Body       string
	Attachment string
}

// UserStore handles user lookups.
type UserStore interface {
	// CreateUser creates a new user.
	CreateUser(ctx context.Context, username string) (*User, error)

	// GetUserByID retrieves a user by ID. Returns ErrNotFound when absent.
	GetUserByID(ctx context.Context, id int64) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message and returns it with generated id and timestamp.
	CreateMessage(ctx context.Context, msg NewMessage) (*Message, error)

	// UpdateReadFlags marks the given messages as read, restricted to unread ones addressed to receiverID.
	// Returns the ids this call actually flipped.
	UpdateReadFlags(ctx context.Context, ids []int64, receiverID int64) ([]int64, error)

	// GetMessage retrieves a message by ID. Returns ErrNotFound when absent.
	GetMessage(ctx context.Context, id int64) (*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Migrate applies the schema.
	Migrate(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}
