package proto

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDAcceptsNumbersAndStrings(t *testing.T) {
	var f TypingFrame
	require.NoError(t, json.Unmarshal([]byte(`{"sender_id":"12","receiver_id":7,"is_typing":true}`), &f))
	assert.Equal(t, ID(12), f.SenderID)
	assert.Equal(t, ID(7), f.ReceiverID)

	out, err := json.Marshal(UserStatus{Header: NewHeader(TypeUserStatus), UserID: 7, Status: "online"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user_status","v":1,"user_id":"7","status":"online"}`, string(out))

	var bad ID
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &bad))
}

func TestDecodeMessageFrame(t *testing.T) {
	var f MessageFrame
	err := Decode([]byte(`{"type":"message","sender_id":1,"receiver_id":"2","listing_id":5,"message":"hello"}`), &f)
	require.NoError(t, err)
	assert.Equal(t, "5", f.Context())
	assert.Equal(t, "hello", f.Message)

	f = MessageFrame{}
	err = Decode([]byte(`{"type":"message","receiver_id":2,"context_id":"L1","message":"x"}`), &f)
	require.NoError(t, err)
	assert.Equal(t, "L1", f.Context())
}

func TestDecodeValidation(t *testing.T) {
	var f MessageFrame
	err := Decode([]byte(`{"type":"message","receiver_id":2,"message":"x"}`), &f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context_id")

	var r ReadFrame
	err = Decode([]byte(`{"type":"read","message_ids":[1,0]}`), &r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive")

	r = ReadFrame{}
	require.NoError(t, Decode([]byte(`{"type":"read","message_ids":["3",4],"reader_id":"2"}`), &r))
	assert.Equal(t, []int64{3, 4}, IDs(r.MessageIDs))
}

func TestDecodeMalformed(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{not json`))
	assert.True(t, errors.Is(err, ErrMalformed))

	var f TypingFrame
	err = Decode([]byte(`{"receiver_id":[1]}`), &f)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestFrameMessageField(t *testing.T) {
	var chat Frame
	require.NoError(t, json.Unmarshal([]byte(`{"type":"chat_message","v":1,"message":{"id":3,"content":"hi","sender_id":"1","receiver_id":"2","listing_id":"L1","created_at":"2024-01-01T00:00:00Z","is_read":false}}`), &chat))
	require.NotNil(t, chat.Message)
	assert.Equal(t, "hi", chat.Message.Content)
	assert.Equal(t, ID(1), chat.Message.SenderID)

	var errFrame Frame
	require.NoError(t, json.Unmarshal([]byte(`{"type":"error","v":1,"code":"bad_request","message":"nope"}`), &errFrame))
	assert.Nil(t, errFrame.Message)
	assert.Equal(t, "nope", errFrame.Text)
	assert.Equal(t, "bad_request", errFrame.Code)
}
