package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/auth"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/config"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/core"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/proto"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
}

// startTestServer runs a full server over an in-memory store. mutate may adjust the config.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.WS.PingInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	disabledLogger := zerolog.Nop()
	hub := core.NewHub(core.HubOptions{
		Users:                 st,
		Messages:              st,
		AllowMultipleSessions: cfg.WS.AllowMultipleSessions,
		Logger:                &disabledLogger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, auth.NewResolver(cfg.JWT), &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st}
}

func (e *testEnv) createUser(t *testing.T, name string) int64 {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), name)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func (e *testEnv) wsURL(path string) string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + path
}

// dial opens a connection and consumes the connection_established and snapshot frames.
func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn := e.dialRaw(t, path)
	if f := readFrame(t, conn); f.Type != proto.TypeConnectionEstablished {
		t.Fatalf("first frame = %s, want connection_established", f.Type)
	}
	if f := readFrame(t, conn); f.Type != proto.TypeOnlineUsers {
		t.Fatalf("second frame = %s, want online_users_list", f.Type)
	}
	return conn
}

func (e *testEnv) dialRaw(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, e.wsURL(path), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) proto.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var f proto.Frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if f.V != proto.ProtocolVersion {
		t.Fatalf("frame %s has version %d", f.Type, f.V)
	}
	return f
}

// readUntil skips frames until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) proto.Frame {
	t.Helper()
	for i := 0; i < 20; i++ {
		if f := readFrame(t, conn); f.Type == typ {
			return f
		}
	}
	t.Fatalf("no %s frame received", typ)
	return proto.Frame{}
}

// expectClose reads until the server closes and returns the close status.
func expectClose(t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			return websocket.CloseStatus(err)
		}
	}
}
