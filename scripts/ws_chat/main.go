package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/proto"
)

type messageOut struct {
	Type string `json:"type"`
	proto.MessageFrame
}

type typingOut struct {
	Type string `json:"type"`
	proto.TypingFrame
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("addr", "ws://localhost:8080", "server base address")
	user := flag.Int64("user", 1, "your user id")
	to := flag.Int64("to", 2, "user id to chat with")
	listing := flag.String("listing", "1", "listing the conversation is about")
	token := flag.String("token", "", "optional JWT")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	url := fmt.Sprintf("%s/ws/messages/%d/", *base, *user)
	if *token != "" {
		url += "?token=" + *token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s as user %d, chatting with %d about listing %s\n", *base, *user, *to, *listing)
	fmt.Println("Type messages and press Enter to send. /typing and /online are commands. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *user, *to, *listing)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f proto.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch f.Type {
		case proto.TypeChatMessage:
			if f.Message != nil {
				fmt.Printf("[listing %s] %d: %s\n", f.Message.ListingID, f.Message.SenderID, f.Message.Content)
			}
		case proto.TypeMessageSent:
			fmt.Printf("(sent #%d)\n", f.MessageID)
		case proto.TypeTypingStatus:
			if f.IsTyping {
				fmt.Printf("%d is typing...\n", f.SenderID)
			}
		case proto.TypeUserStatus:
			fmt.Printf("user %d is %s\n", f.UserID, f.Status)
		case proto.TypeOnlineUsers:
			fmt.Printf("online (%d): %v\n", f.Count, f.OnlineUsers)
		case proto.TypeError:
			fmt.Printf("error %s: %s\n", f.Code, f.Text)
		default:
			fmt.Printf("%s\n", f.Type)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, user, to int64, listing string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var frame any
			switch text {
			case "/typing":
				frame = typingOut{Type: proto.InboundTypeTyping, TypingFrame: proto.TypingFrame{
					SenderID: proto.ID(user), ReceiverID: proto.ID(to), IsTyping: true,
				}}
			case "/online":
				frame = map[string]string{"type": proto.InboundTypeGetOnlineUsers}
			default:
				frame = messageOut{Type: proto.InboundTypeMessage, MessageFrame: proto.MessageFrame{
					SenderID:   proto.ID(user),
					ReceiverID: proto.ID(to),
					ListingID:  proto.Key(listing),
					Message:    text,
				}}
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
