package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/store"
)

// SendRequest is an inbound chat message before persistence.
type SendRequest struct {
	SenderID   int64
	ReceiverID int64
	ContextID  string
	Body       string
	Attachment string
}

// Relay persists chat messages and forwards messages, typing signals and read receipts.
type Relay struct {
	users    store.UserStore
	messages store.MessageStore
	router   *Router
	log      *zerolog.Logger
}

// NewRelay builds a relay writing through the given stores.
func NewRelay(users store.UserStore, messages store.MessageStore, router *Router, logger *zerolog.Logger) *Relay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Relay{
		users:    users,
		messages: messages,
		router:   router,
		log:      logger,
	}
}

// Send validates the participants, persists the message and then publishes it to the
// receiver's channel. The stored record is returned even when nobody receives it.
func (r *Relay) Send(ctx context.Context, req SendRequest) (*store.Message, error) {
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		return nil, ProtocolError(ErrCodeBadRequest, "message is required")
	}
	if req.ContextID == "" {
		return nil, ProtocolError(ErrCodeBadRequest, "context_id is required")
	}

	if err := r.checkUser(ctx, req.SenderID); err != nil {
		return nil, err
	}
	if err := r.checkUser(ctx, req.ReceiverID); err != nil {
		return nil, err
	}

	msg, err := r.messages.CreateMessage(ctx, store.NewMessage{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		ContextID:  req.ContextID,
		Body:       req.Body,
		Attachment: req.Attachment,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	ev := &Event{Kind: EventChatMessage, Message: msg}
	if err := r.router.Publish(ctx, UserChannel(req.ReceiverID), ev); err != nil {
		// The message is stored; the receiver will find it through history.
		r.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("publish chat message")
	}

	return msg, nil
}

func (r *Relay) checkUser(ctx context.Context, id int64) error {
	if _, err := r.users.GetUserByID(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &CoreError{
				Code:    ErrCodeUnknownParticipant,
				Message: fmt.Sprintf("user %d does not exist", id),
				Err:     ErrUnknownParticipant,
			}
		}
		return fmt.Errorf("%w: lookup user %d: %w", ErrPersistence, id, err)
	}
	return nil
}

// MarkRead flags the messages addressed to readerID as read and notifies each sender.
// Ids that are unknown, already read or addressed to someone else are skipped silently.
// It returns the number of messages this call marked.
func (r *Relay) MarkRead(ctx context.Context, ids []int64, readerID int64) (int, error) {
	ids = lo.Uniq(ids)

	candidates := make([]*store.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := r.messages.GetMessage(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if msg.ReceiverID != readerID || msg.IsRead {
			continue
		}
		candidates = append(candidates, msg)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	targetIDs := lo.Map(candidates, func(m *store.Message, _ int) int64 { return m.ID })
	flipped, err := r.messages.UpdateReadFlags(ctx, targetIDs, readerID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	// A concurrent read of the same message may have won the update.
	for _, msg := range candidates {
		if msg.SenderID == readerID || !lo.Contains(flipped, msg.ID) {
			continue
		}
		ev := &Event{Kind: EventMessageRead, MessageID: msg.ID, ReaderID: readerID}
		if err := r.router.Publish(ctx, UserChannel(msg.SenderID), ev); err != nil {
			r.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("publish read receipt")
		}
	}

	return len(flipped), nil
}

// SetTyping forwards a typing indicator to the receiver's channel. Nothing is stored.
func (r *Relay) SetTyping(ctx context.Context, senderID, receiverID int64, isTyping bool) error {
	ev := &Event{Kind: EventTypingStatus, SenderID: senderID, IsTyping: isTyping}
	return r.router.Publish(ctx, UserChannel(receiverID), ev)
}
