package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ProtocolVersion is stamped on every outbound frame. Inbound frames may omit it.
const ProtocolVersion = 1

// Inbound frame types.
const (
	InboundTypeMessage        = "message"
	InboundTypeTyping         = "typing"
	InboundTypeRead           = "read"
	InboundTypePing           = "ping"
	InboundTypeGetOnlineUsers = "get_online_users"
)

// Envelope holds the fields shared by every inbound frame.
type Envelope struct {
	Type string `json:"type"`
	V    *int   `json:"v,omitempty"`
}

// MessageFrame asks the relay to persist and deliver a chat message.
type MessageFrame struct {
	SenderID   ID     `json:"sender_id"`
	ReceiverID ID     `json:"receiver_id" validate:"required,gt=0"`
	ContextID  Key    `json:"context_id" validate:"required_without=ListingID,max=64"`
	ListingID  Key    `json:"listing_id" validate:"max=64"`
	Message    string `json:"message" validate:"required,max=4000"`
	Attachment string `json:"attachment,omitempty" validate:"omitempty,max=512"`
}

// Context returns the conversation context, preferring context_id over listing_id.
func (f MessageFrame) Context() string {
	if f.ContextID != "" {
		return string(f.ContextID)
	}
	return string(f.ListingID)
}

// TypingFrame relays a typing indicator.
type TypingFrame struct {
	SenderID   ID   `json:"sender_id"`
	ReceiverID ID   `json:"receiver_id" validate:"required,gt=0"`
	IsTyping   bool `json:"is_typing"`
}

// ReadFrame marks messages as read by the reader.
type ReadFrame struct {
	MessageIDs []ID `json:"message_ids" validate:"max=500,dive,gt=0"`
	ReaderID   ID   `json:"reader_id"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrMalformed wraps JSON decoding failures.
var ErrMalformed = errors.New("malformed frame")

// DecodeEnvelope parses the common envelope of a raw frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env, nil
}

// Decode unmarshals data into frame and validates it.
func Decode(data []byte, frame any) error {
	if err := json.Unmarshal(data, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Validate(frame)
}

// Validate checks frame against its struct tags and returns a readable error.
func Validate(frame any) error {
	err := validate.Struct(frame)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_without":
		return field + " or listing_id is required"
	case "gt":
		return field + " must be a positive id"
	case "max":
		return field + " is too long"
	default:
		return field + " is invalid"
	}
}
