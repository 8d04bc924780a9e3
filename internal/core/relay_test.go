package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateUser(ctx context.Context, username string) (*store.User, error) {
	args := m.Called(ctx, username)
	if u := args.Get(0); u != nil {
		return u.(*store.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*store.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) CreateMessage(ctx context.Context, msg store.NewMessage) (*store.Message, error) {
	args := m.Called(ctx, msg)
	if rec := args.Get(0); rec != nil {
		return rec.(*store.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) UpdateReadFlags(ctx context.Context, ids []int64, receiverID int64) ([]int64, error) {
	args := m.Called(ctx, ids, receiverID)
	if ids := args.Get(0); ids != nil {
		return ids.([]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	args := m.Called(ctx, id)
	if rec := args.Get(0); rec != nil {
		return rec.(*store.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestRelay(st *mockStore) (*Relay, *Router) {
	router := NewRouter(nil, nil)
	return NewRelay(st, st, router, nil), router
}

func TestRelaySendPersistsThenPublishes(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	relay, router := newTestRelay(st)

	receiver := NewClient(2, 4)
	router.Subscribe(receiver.Channel(), receiver)

	st.On("GetUserByID", ctx, int64(1)).Return(&store.User{ID: 1}, nil)
	st.On("GetUserByID", ctx, int64(2)).Return(&store.User{ID: 2}, nil)
	want := &store.Message{ID: 10, SenderID: 1, ReceiverID: 2, ContextID: "L1", Body: "hi", CreatedAt: time.Now()}
	st.On("CreateMessage", ctx, store.NewMessage{SenderID: 1, ReceiverID: 2, ContextID: "L1", Body: "hi"}).
		Return(want, nil).Once()

	got, err := relay.Send(ctx, SendRequest{SenderID: 1, ReceiverID: 2, ContextID: "L1", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ev := mustEvent(t, receiver.Events, EventChatMessage)
	assert.Equal(t, int64(10), ev.Message.ID)
	st.AssertExpectations(t)
}

func TestRelaySendWithoutSubscribersStillReturnsRecord(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	relay, _ := newTestRelay(st)

	st.On("GetUserByID", ctx, mock.Anything).Return(&store.User{}, nil)
	st.On("CreateMessage", ctx, mock.Anything).Return(&store.Message{ID: 3}, nil)

	got, err := relay.Send(ctx, SendRequest{SenderID: 1, ReceiverID: 2, ContextID: "L1", Body: "anyone?"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
}

func TestRelaySendUnknownParticipant(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	relay, _ := newTestRelay(st)

	st.On("GetUserByID", ctx, int64(1)).Return(&store.User{ID: 1}, nil)
	st.On("GetUserByID", ctx, int64(99)).Return(nil, store.ErrNotFound)

	_, err := relay.Send(ctx, SendRequest{SenderID: 1, ReceiverID: 99, ContextID: "L1", Body: "hi"})
	require.ErrorIs(t, err, ErrUnknownParticipant)
	assert.Equal(t, ErrCodeUnknownParticipant, CodeOf(err))
	st.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestRelaySendPersistenceFailureSkipsDelivery(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	relay, router := newTestRelay(st)

	receiver := NewClient(2, 4)
	router.Subscribe(receiver.Channel(), receiver)

	st.On("GetUserByID", ctx, mock.Anything).Return(&store.User{}, nil)
	st.On("CreateMessage", ctx, mock.Anything).Return(nil, errors.New("disk full"))

	_, err := relay.Send(ctx, SendRequest{SenderID: 1, ReceiverID: 2, ContextID: "L1", Body: "hi"})
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, ErrCodePersistenceFailure, CodeOf(err))
	assert.Len(t, receiver.Events, 0)
}

func TestRelaySendRejectsEmptyBody(t *testing.T) {
	st := new(mockStore)
	relay, _ := newTestRelay(st)

	_, err := relay.Send(context.Background(), SendRequest{SenderID: 1, ReceiverID: 2, ContextID: "L1", Body: "   "})
	require.ErrorIs(t, err, ErrProtocol)
	st.AssertNotCalled(t, "GetUserByID", mock.Anything, mock.Anything)
}

func TestRelayMarkReadOnlyOwnMessages(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	relay, router := newTestRelay(st)

	alice := NewClient(1, 4)
	carol := NewClient(3, 4)
	router.Subscribe(alice.Channel(), alice)
	router.Subscribe(carol.Channel(), carol)

	// 10: alice -> bob, unread. 11: carol -> dave, not bob's. 12: already read. 13: missing.
	st.On("GetMessage", ctx, int64(10)).Return(&store.Message{ID: 10, SenderID: 1, ReceiverID: 2}, nil)
	st.On("GetMessage", ctx, int64(11)).Return(&store.Message{ID: 11, SenderID: 3, ReceiverID: 4}, nil)
	st.On("GetMessage", ctx, int64(12)).Return(&store.Message{ID: 12, SenderID: 3, ReceiverID: 2, IsRead: true}, nil)
	st.On("GetMessage", ctx, int64(13)).Return(nil, store.ErrNotFound)
	st.On("UpdateReadFlags", ctx, []int64{10}, int64(2)).Return([]int64{10}, nil).Once()

	n, err := relay.MarkRead(ctx, []int64{10, 10, 11, 12, 13}, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ev := mustEvent(t, alice.Events, EventMessageRead)
	assert.Equal(t, int64(10), ev.MessageID)
	assert.Equal(t, int64(2), ev.ReaderID)
	assert.Len(t, carol.Events, 0)
	st.AssertNumberOfCalls(t, "GetMessage", 4)
	st.AssertExpectations(t)
}

func TestRelayMarkReadSelfMessageNotNotified(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	relay, router := newTestRelay(st)

	self := NewClient(5, 4)
	router.Subscribe(self.Channel(), self)

	st.On("GetMessage", ctx, int64(1)).Return(&store.Message{ID: 1, SenderID: 5, ReceiverID: 5}, nil)
	st.On("UpdateReadFlags", ctx, []int64{1}, int64(5)).Return([]int64{1}, nil)

	n, err := relay.MarkRead(ctx, []int64{1}, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, self.Events, 0)
}

func TestRelaySetTypingTargetsReceiverOnly(t *testing.T) {
	st := new(mockStore)
	relay, router := newTestRelay(st)

	sender := NewClient(1, 4)
	receiver := NewClient(2, 4)
	router.Subscribe(sender.Channel(), sender)
	router.Subscribe(receiver.Channel(), receiver)

	require.NoError(t, relay.SetTyping(context.Background(), 1, 2, true))

	ev := mustEvent(t, receiver.Events, EventTypingStatus)
	assert.Equal(t, int64(1), ev.SenderID)
	assert.True(t, ev.IsTyping)
	assert.Len(t, sender.Events, 0)
}
