package http

import (
	"errors"
	"fmt"
	"time"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/core"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/proto"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/store"
)

func decodeInbound(data []byte) (*core.Command, error) {
	env, err := proto.DecodeEnvelope(data)
	if err != nil {
		return nil, core.ProtocolError(core.ErrCodeBadRequest, "invalid JSON")
	}
	if env.V != nil && *env.V != proto.ProtocolVersion {
		return nil, core.ProtocolError(core.ErrCodeUnsupportedVersion,
			fmt.Sprintf("unsupported protocol version %d", *env.V))
	}

	switch env.Type {
	case proto.InboundTypeMessage:
		var f proto.MessageFrame
		if err := proto.Decode(data, &f); err != nil {
			return nil, frameError(err)
		}
		return &core.Command{
			Kind:       core.CommandSendMessage,
			SenderID:   int64(f.SenderID),
			ReceiverID: int64(f.ReceiverID),
			ContextID:  f.Context(),
			Body:       f.Message,
			Attachment: f.Attachment,
		}, nil
	case proto.InboundTypeTyping:
		var f proto.TypingFrame
		if err := proto.Decode(data, &f); err != nil {
			return nil, frameError(err)
		}
		return &core.Command{
			Kind:       core.CommandTyping,
			SenderID:   int64(f.SenderID),
			ReceiverID: int64(f.ReceiverID),
			IsTyping:   f.IsTyping,
		}, nil
	case proto.InboundTypeRead:
		var f proto.ReadFrame
		if err := proto.Decode(data, &f); err != nil {
			return nil, frameError(err)
		}
		return &core.Command{
			Kind:       core.CommandMarkRead,
			ReaderID:   int64(f.ReaderID),
			MessageIDs: proto.IDs(f.MessageIDs),
		}, nil
	case proto.InboundTypePing:
		return &core.Command{Kind: core.CommandPing}, nil
	case proto.InboundTypeGetOnlineUsers:
		return &core.Command{Kind: core.CommandListOnline}, nil
	case "":
		return nil, core.ProtocolError(core.ErrCodeBadRequest, "type is required")
	default:
		return nil, core.ProtocolError(core.ErrCodeUnknownType, fmt.Sprintf("unknown message type %q", env.Type))
	}
}

func frameError(err error) error {
	if errors.Is(err, proto.ErrMalformed) {
		return core.ProtocolError(core.ErrCodeBadRequest, "invalid field type")
	}
	return core.ProtocolError(core.ErrCodeBadRequest, err.Error())
}

// outboundFromEvent returns the wire frame for event, or nil when it has no wire form.
func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventConnectionEstablished:
		return proto.ConnectionEstablished{
			Header:    proto.NewHeader(proto.TypeConnectionEstablished),
			UserID:    proto.ID(event.UserID),
			RoomGroup: event.Channel,
			Message:   "connection established",
		}
	case core.EventChatMessage:
		if event.Message == nil {
			return nil
		}
		return proto.ChatMessage{
			Header:  proto.NewHeader(proto.TypeChatMessage),
			Message: messagePayload(event.Message),
		}
	case core.EventMessageSent:
		return proto.MessageSent{
			Header:    proto.NewHeader(proto.TypeMessageSent),
			MessageID: event.MessageID,
		}
	case core.EventTypingStatus:
		return proto.TypingStatus{
			Header:   proto.NewHeader(proto.TypeTypingStatus),
			SenderID: proto.ID(event.SenderID),
			IsTyping: event.IsTyping,
		}
	case core.EventMessageRead:
		return proto.MessageRead{
			Header:    proto.NewHeader(proto.TypeMessageRead),
			MessageID: event.MessageID,
			ReaderID:  proto.ID(event.ReaderID),
		}
	case core.EventUserStatus:
		return proto.UserStatus{
			Header: proto.NewHeader(proto.TypeUserStatus),
			UserID: proto.ID(event.UserID),
			Status: event.Status,
		}
	case core.EventOnlineUsers:
		return proto.OnlineUsers{
			Header:      proto.NewHeader(proto.TypeOnlineUsers),
			OnlineUsers: proto.FromIDs(event.OnlineUsers),
			Count:       len(event.OnlineUsers),
		}
	case core.EventPong:
		return proto.Pong{
			Header:    proto.NewHeader(proto.TypePong),
			Timestamp: event.Timestamp,
		}
	case core.EventError:
		ce := event.Error
		if ce == nil {
			ce = &core.CoreError{Code: core.ErrCodeInternal, Message: "unknown error"}
		}
		return proto.Error{
			Header:  proto.NewHeader(proto.TypeError),
			Code:    ce.Code,
			Message: ce.Message,
		}
	default:
		return nil
	}
}

func messagePayload(m *store.Message) proto.MessagePayload {
	return proto.MessagePayload{
		ID:         m.ID,
		Content:    m.Body,
		SenderID:   proto.ID(m.SenderID),
		ReceiverID: proto.ID(m.ReceiverID),
		ListingID:  m.ContextID,
		Attachment: m.Attachment,
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339Nano),
		IsRead:     m.IsRead,
	}
}
