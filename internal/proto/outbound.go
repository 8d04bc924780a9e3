package proto

import (
	"bytes"
	"encoding/json"
)

// Outbound frame types.
const (
	TypeConnectionEstablished = "connection_established"
	TypeChatMessage           = "chat_message"
	TypeMessageSent           = "message_sent"
	TypeTypingStatus          = "typing_status"
	TypeMessageRead           = "message_read"
	TypeUserStatus            = "user_status"
	TypeOnlineUsers           = "online_users_list"
	TypePong                  = "pong"
	TypeError                 = "error"
)

// Header is embedded in every outbound frame.
type Header struct {
	Type string `json:"type"`
	V    int    `json:"v"`
}

// NewHeader stamps typ with the current protocol version.
func NewHeader(typ string) Header {
	return Header{Type: typ, V: ProtocolVersion}
}

// ConnectionEstablished is the first frame of every session and names the personal channel.
type ConnectionEstablished struct {
	Header
	UserID    ID     `json:"user_id"`
	RoomGroup string `json:"room_group"`
	Message   string `json:"message"`
}

// MessagePayload is a persisted chat message as clients see it.
type MessagePayload struct {
	ID         int64  `json:"id"`
	Content    string `json:"content"`
	SenderID   ID     `json:"sender_id"`
	ReceiverID ID     `json:"receiver_id"`
	ListingID  string `json:"listing_id"`
	Attachment string `json:"attachment,omitempty"`
	CreatedAt  string `json:"created_at"`
	IsRead     bool   `json:"is_read"`
}

// ChatMessage delivers a stored message to its receiver.
type ChatMessage struct {
	Header
	Message MessagePayload `json:"message"`
}

// MessageSent acknowledges a send to the sender once the message is stored.
type MessageSent struct {
	Header
	MessageID int64 `json:"message_id"`
}

// TypingStatus tells the receiver that the sender started or stopped typing.
type TypingStatus struct {
	Header
	SenderID ID   `json:"sender_id"`
	IsTyping bool `json:"is_typing"`
}

// MessageRead is the read receipt sent to the original sender.
type MessageRead struct {
	Header
	MessageID int64 `json:"message_id"`
	ReaderID  ID    `json:"reader_id"`
}

// UserStatus announces a user going online or offline.
type UserStatus struct {
	Header
	UserID ID     `json:"user_id"`
	Status string `json:"status"`
}

// OnlineUsers is the presence snapshot sent on connect and on request.
type OnlineUsers struct {
	Header
	OnlineUsers []ID `json:"online_users"`
	Count       int  `json:"count"`
}

// Pong answers a ping with the server time in unix seconds.
type Pong struct {
	Header
	Timestamp int64 `json:"timestamp"`
}

// Error describes a protocol-level error response.
type Error struct {
	Header
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Frame is a loose decoding target for clients reading any outbound frame.
// The "message" key holds an object on chat_message and text elsewhere.
type Frame struct {
	Type        string          `json:"type"`
	V           int             `json:"v"`
	UserID      ID              `json:"user_id"`
	Status      string          `json:"status"`
	Message     *MessagePayload `json:"-"`
	Text        string          `json:"-"`
	MessageID   int64           `json:"message_id"`
	ReaderID    ID              `json:"reader_id"`
	SenderID    ID              `json:"sender_id"`
	IsTyping    bool            `json:"is_typing"`
	OnlineUsers []ID            `json:"online_users"`
	Count       int             `json:"count"`
	Timestamp   int64           `json:"timestamp"`
	Code        string          `json:"code"`
}

func (f *Frame) UnmarshalJSON(data []byte) error {
	type plain Frame
	aux := struct {
		*plain
		Raw json.RawMessage `json:"message"`
	}{plain: (*plain)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	raw := bytes.TrimSpace(aux.Raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '{':
		f.Message = &MessagePayload{}
		return json.Unmarshal(raw, f.Message)
	default:
		return json.Unmarshal(raw, &f.Text)
	}
	return nil
}
