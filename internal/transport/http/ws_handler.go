package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/auth"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/config"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/core"
)

// Application close codes.
const (
	StatusInvalidUser      websocket.StatusCode = 4000
	StatusDuplicateSession websocket.StatusCode = 4001
)

const teardownTimeout = 5 * time.Second

var errIdleTimeout = errors.New("idle timeout")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub      *core.Hub
	resolver *auth.Resolver
	cfg      config.WSConfig
	log      *zerolog.Logger
	sessions sync.WaitGroup
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, resolver *auth.Resolver, cfg config.WSConfig, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, resolver: resolver, cfg: cfg, log: logger}
}

// ServeHTTP handles /ws and /ws/messages/{user_id}/.
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	h.ServeConn(w, r, r.PathValue("user_id"))
}

// ServeConn runs one connection from handshake to teardown. pathID may be empty.
func (h *WSHandler) ServeConn(w stdhttp.ResponseWriter, r *stdhttp.Request, pathID string) {
	h.sessions.Add(1)
	defer h.sessions.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.cfg.AllowedOrigins,
		InsecureSkipVerify: len(h.cfg.AllowedOrigins) == 0,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	userID, err := h.resolver.Resolve(r, pathID)
	if err != nil {
		h.log.Warn().Err(err).Str("path_user_id", pathID).Msg("rejecting connection")
		conn.Close(StatusInvalidUser, "invalid user id")
		return
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := core.NewClient(userID, h.cfg.OutboundBuffer)
	if err := h.hub.Connect(ctx, client); err != nil {
		h.teardown(r.Context(), client)
		if errors.Is(err, core.ErrDuplicateConnection) {
			h.log.Info().Int64("user_id", userID).Msg("duplicate session rejected")
			conn.Close(StatusDuplicateSession, "user already connected")
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("connect failed")
		conn.Close(websocket.StatusInternalError, "registration failed")
		return
	}
	defer h.teardown(r.Context(), client)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(err, errIdleTimeout):
		status = websocket.StatusGoingAway
		reason = "idle timeout"
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// Wait blocks until every session served so far has finished its teardown, or ctx ends.
func (h *WSHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for ws sessions: %w", ctx.Err())
	}
}

// teardown runs after the request context may already be gone, so it gets its own deadline.
func (h *WSHandler) teardown(parent context.Context, client *core.Client) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), teardownTimeout)
	defer cancel()
	h.hub.Disconnect(ctx, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)

	for {
		typ, data, err := h.read(ctx, conn)
		if err != nil {
			if !errors.Is(err, errIdleTimeout) && websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("read ws inbound")
			}
			return err
		}

		if typ != websocket.MessageText {
			client.Enqueue(core.ErrorEvent(core.ProtocolError(core.ErrCodeBadRequest, "only text frames are supported")))
			continue
		}
		if !allowFrame(limiter, time.Now()) {
			client.Enqueue(core.ErrorEvent(core.ProtocolError(core.ErrCodeRateLimited, "rate limit exceeded")))
			continue
		}

		cmd, err := decodeInbound(data)
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("rejected inbound frame")
			client.Enqueue(core.ErrorEvent(err))
			continue
		}

		if err := h.hub.Handle(ctx, client, cmd); err != nil {
			level := zerolog.WarnLevel
			if errors.Is(err, core.ErrProtocol) || errors.Is(err, core.ErrUnknownParticipant) {
				level = zerolog.DebugLevel
			}
			h.log.WithLevel(level).
				Err(err).
				Str("conn_id", client.ID).
				Int64("user_id", client.UserID).
				Str("command", string(cmd.Kind)).
				Str("code", core.CodeOf(err)).
				Msg("command failed")
		}
	}
}

// read waits for the next frame, bounded by the idle timeout when one is configured.
func (h *WSHandler) read(ctx context.Context, conn *websocket.Conn) (websocket.MessageType, []byte, error) {
	if h.cfg.IdleTimeout <= 0 {
		return conn.Read(ctx)
	}
	rctx, cancel := context.WithTimeout(ctx, h.cfg.IdleTimeout)
	defer cancel()

	typ, data, err := conn.Read(rctx)
	if err != nil && ctx.Err() == nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
		return typ, data, errIdleTimeout
	}
	return typ, data, err
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	var pingC <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			frame := outboundFromEvent(event)
			if frame == nil {
				continue
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-pingC:
			pctx, cancel := context.WithTimeout(ctx, h.cfg.PingInterval)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("keepalive ping failed")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
