package core

import "github.com/DarkZangetsu/Marketplace-GreenTech/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind string

const (
	// EventConnectionEstablished is the first event a new connection receives.
	EventConnectionEstablished EventKind = "connection_established"
	// EventChatMessage delivers a persisted chat message to its receiver.
	EventChatMessage EventKind = "chat_message"
	// EventMessageSent acknowledges a persisted message to its sender.
	EventMessageSent EventKind = "message_sent"
	// EventTypingStatus relays a typing indicator.
	EventTypingStatus EventKind = "typing_status"
	// EventMessageRead tells a sender that the receiver read a message.
	EventMessageRead EventKind = "message_read"
	// EventUserStatus announces a presence change.
	EventUserStatus EventKind = "user_status"
	// EventOnlineUsers carries a snapshot of online user ids.
	EventOnlineUsers EventKind = "online_users_list"
	// EventPong answers a client ping.
	EventPong EventKind = "pong"
	// EventError notifies clients about a domain error.
	EventError EventKind = "error"
)

// Presence statuses carried by EventUserStatus.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Event is sent to clients to describe what happened in the system.
// It is JSON encoded when it travels over a cluster bus.
type Event struct {
	Kind EventKind `json:"kind"`
	// Origin is the connection handle excluded from fan-out.
	Origin string `json:"origin,omitempty"`

	UserID  int64  `json:"user_id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Status  string `json:"status,omitempty"`

	Message   *store.Message `json:"message,omitempty"`
	MessageID int64          `json:"message_id,omitempty"`
	ReaderID  int64          `json:"reader_id,omitempty"`
	SenderID  int64          `json:"sender_id,omitempty"`
	IsTyping  bool           `json:"is_typing,omitempty"`

	OnlineUsers []int64 `json:"online_users,omitempty"`
	Timestamp   int64   `json:"timestamp,omitempty"`

	Error *CoreError `json:"error,omitempty"`
}

// ErrorEvent builds the event reported to a client for err.
func ErrorEvent(err error) *Event {
	return &Event{Kind: EventError, Error: AsCoreError(err)}
}
