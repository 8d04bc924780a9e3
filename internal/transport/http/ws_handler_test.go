package http

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/auth"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/config"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/core"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/proto"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/store"
)

func userPath(id int64) string {
	return fmt.Sprintf("/ws/messages/%d/", id)
}

func TestChatBetweenTwoUsers(t *testing.T) {
	env := startTestServer(t, nil)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	a := env.dial(t, userPath(alice))
	b := env.dial(t, userPath(bob))

	status := readUntil(t, a, proto.TypeUserStatus)
	if status.UserID != proto.ID(bob) || status.Status != core.StatusOnline {
		t.Fatalf("unexpected status frame %+v", status)
	}

	send(t, a, map[string]any{
		"type":        "message",
		"sender_id":   fmt.Sprint(alice),
		"receiver_id": bob,
		"listing_id":  "L1",
		"message":     "hi",
	})

	got := readUntil(t, b, proto.TypeChatMessage)
	if got.Message == nil || got.Message.Content != "hi" || got.Message.ListingID != "L1" {
		t.Fatalf("unexpected chat frame %+v", got.Message)
	}
	if got.Message.SenderID != proto.ID(alice) || got.Message.IsRead {
		t.Fatalf("unexpected chat payload %+v", got.Message)
	}

	ack := readUntil(t, a, proto.TypeMessageSent)
	if ack.MessageID != got.Message.ID {
		t.Fatalf("ack id %d != delivered id %d", ack.MessageID, got.Message.ID)
	}

	// Exactly one record was stored.
	ctx := context.Background()
	if _, err := env.store.GetMessage(ctx, ack.MessageID); err != nil {
		t.Fatalf("stored message: %v", err)
	}
	if _, err := env.store.GetMessage(ctx, ack.MessageID+1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected a single stored message, got %v", err)
	}

	send(t, b, map[string]any{"type": "read", "message_ids": []int64{ack.MessageID}, "reader_id": bob})
	receipt := readUntil(t, a, proto.TypeMessageRead)
	if receipt.MessageID != ack.MessageID || receipt.ReaderID != proto.ID(bob) {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	b.Close(websocket.StatusNormalClosure, "bye")
	status = readUntil(t, a, proto.TypeUserStatus)
	if status.UserID != proto.ID(bob) || status.Status != core.StatusOffline {
		t.Fatalf("expected bob offline, got %+v", status)
	}
}

func TestMalformedJSONKeepsConnectionOpen(t *testing.T) {
	env := startTestServer(t, nil)
	conn := env.dial(t, userPath(env.createUser(t, "alice")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type": "message",`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	f := readFrame(t, conn)
	if f.Type != proto.TypeError || f.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request error, got %+v", f)
	}

	send(t, conn, map[string]any{"type": "ping"})
	if f := readFrame(t, conn); f.Type != proto.TypePong || f.Timestamp == 0 {
		t.Fatalf("expected pong right after the error, got %+v", f)
	}
}

func TestInvalidUserIDRejected(t *testing.T) {
	env := startTestServer(t, nil)

	for _, path := range []string{"/ws/messages/abc/", "/ws/messages/0/", "/ws"} {
		conn := env.dialRaw(t, path)
		if code := expectClose(t, conn); code != StatusInvalidUser {
			t.Fatalf("%s: close code = %d, want %d", path, code, StatusInvalidUser)
		}
	}

	online, err := env.hub.OnlineUsers(context.Background())
	if err != nil || len(online) != 0 {
		t.Fatalf("rejected connections must not register: %v %v", online, err)
	}
}

func TestTypingReachesEveryConnectionOfReceiver(t *testing.T) {
	env := startTestServer(t, nil)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	b1 := env.dial(t, userPath(bob))
	b2 := env.dial(t, userPath(bob))
	a := env.dial(t, userPath(alice))

	send(t, a, map[string]any{"type": "typing", "sender_id": alice, "receiver_id": bob, "is_typing": true})

	for _, conn := range []*websocket.Conn{b1, b2} {
		f := readUntil(t, conn, proto.TypeTypingStatus)
		if f.SenderID != proto.ID(alice) || !f.IsTyping {
			t.Fatalf("unexpected typing frame %+v", f)
		}
	}
}

func TestProtocolVersionMismatch(t *testing.T) {
	env := startTestServer(t, nil)
	conn := env.dial(t, userPath(env.createUser(t, "alice")))

	send(t, conn, map[string]any{"type": "ping", "v": proto.ProtocolVersion + 1})

	f := readFrame(t, conn)
	if f.Type != proto.TypeError || f.Code != core.ErrCodeUnsupportedVersion {
		t.Fatalf("expected unsupported_version error, got %+v", f)
	}
}

func TestUnknownReceiverIsReported(t *testing.T) {
	env := startTestServer(t, nil)
	alice := env.createUser(t, "alice")
	conn := env.dial(t, userPath(alice))

	send(t, conn, map[string]any{"type": "message", "receiver_id": 999, "context_id": "L1", "message": "hello?"})

	f := readFrame(t, conn)
	if f.Type != proto.TypeError || f.Code != core.ErrCodeUnknownParticipant {
		t.Fatalf("expected unknown_participant, got %+v", f)
	}
	if _, err := env.store.GetMessage(context.Background(), 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("nothing should be stored, got %v", err)
	}
}

func TestUnknownTypeAndValidation(t *testing.T) {
	env := startTestServer(t, nil)
	conn := env.dial(t, userPath(env.createUser(t, "alice")))

	send(t, conn, map[string]any{"type": "dance"})
	if f := readFrame(t, conn); f.Code != core.ErrCodeUnknownType {
		t.Fatalf("expected unknown_type, got %+v", f)
	}

	send(t, conn, map[string]any{"type": "typing", "is_typing": true})
	if f := readFrame(t, conn); f.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request for missing receiver, got %+v", f)
	}
}

func TestGetOnlineUsers(t *testing.T) {
	env := startTestServer(t, nil)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	a := env.dial(t, userPath(alice))
	env.dial(t, userPath(bob))
	readUntil(t, a, proto.TypeUserStatus)

	send(t, a, map[string]any{"type": "get_online_users"})
	f := readUntil(t, a, proto.TypeOnlineUsers)
	if f.Count != 2 || len(f.OnlineUsers) != 2 {
		t.Fatalf("unexpected online list %+v", f)
	}
}

func TestSingleSessionPolicy(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.WS.AllowMultipleSessions = false
	})
	alice := env.createUser(t, "alice")
	first := env.dial(t, userPath(alice))

	second := env.dialRaw(t, userPath(alice))
	if code := expectClose(t, second); code != StatusDuplicateSession {
		t.Fatalf("close code = %d, want %d", code, StatusDuplicateSession)
	}

	send(t, first, map[string]any{"type": "ping"})
	readUntil(t, first, proto.TypePong)
}

func TestTokenAuthentication(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.JWT.Secret = "testsecret"
		cfg.JWT.Required = true
	})
	alice := env.createUser(t, "alice")

	jwtCfg := auth.NewJWTConfig(config.JWTConfig{
		Secret:   "testsecret",
		Issuer:   config.Default().JWT.Issuer,
		Audience: config.Default().JWT.Audience,
	}, time.Minute)
	token, err := auth.GenerateToken(jwtCfg, alice, "alice")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	conn := env.dial(t, "/ws?token="+token)
	send(t, conn, map[string]any{"type": "get_online_users"})
	f := readUntil(t, conn, proto.TypeOnlineUsers)
	if len(f.OnlineUsers) != 1 || f.OnlineUsers[0] != proto.ID(alice) {
		t.Fatalf("unexpected online list %+v", f)
	}

	noToken := env.dialRaw(t, userPath(alice))
	if code := expectClose(t, noToken); code != StatusInvalidUser {
		t.Fatalf("close code = %d, want %d", code, StatusInvalidUser)
	}

	mismatch := env.dialRaw(t, userPath(alice+1)+"?token="+token)
	if code := expectClose(t, mismatch); code != StatusInvalidUser {
		t.Fatalf("close code = %d, want %d", code, StatusInvalidUser)
	}
}

func TestRateLimit(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.WS.RateLimitPerMinute = 2
	})
	conn := env.dial(t, userPath(env.createUser(t, "alice")))

	for i := 0; i < 3; i++ {
		send(t, conn, map[string]any{"type": "ping"})
	}
	readUntil(t, conn, proto.TypePong)
	readUntil(t, conn, proto.TypePong)
	if f := readFrame(t, conn); f.Code != core.ErrCodeRateLimited {
		t.Fatalf("expected rate_limited, got %+v", f)
	}
}
