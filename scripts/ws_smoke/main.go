package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("addr", "ws://localhost:8080", "server base address")
	from := flag.Int64("from", 1, "sender user id (must exist)")
	to := flag.Int64("to", 2, "receiver user id (must exist)")
	listing := flag.String("listing", "1", "listing id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dial := func(id int64) (*websocket.Conn, error) {
		conn, _, err := websocket.Dial(ctx, fmt.Sprintf("%s/ws/messages/%d/", *base, id), nil)
		if err != nil {
			return nil, fmt.Errorf("dial user %d: %w", id, err)
		}
		return conn, nil
	}

	receiver, err := dial(*to)
	if err != nil {
		return err
	}
	defer receiver.Close(websocket.StatusNormalClosure, "bye")

	sender, err := dial(*from)
	if err != nil {
		return err
	}
	defer sender.Close(websocket.StatusNormalClosure, "bye")

	err = wsjson.Write(ctx, sender, map[string]any{
		"type":        proto.InboundTypeMessage,
		"sender_id":   *from,
		"receiver_id": *to,
		"listing_id":  *listing,
		"message":     *text,
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	ack, err := waitFor(ctx, sender, proto.TypeMessageSent)
	if err != nil {
		return err
	}
	fmt.Printf("sender: message %d stored\n", ack.MessageID)

	got, err := waitFor(ctx, receiver, proto.TypeChatMessage)
	if err != nil {
		return err
	}
	fmt.Printf("receiver: got %q from %d about listing %s\n", got.Message.Content, got.Message.SenderID, got.Message.ListingID)
	return nil
}

func waitFor(ctx context.Context, conn *websocket.Conn, typ string) (proto.Frame, error) {
	for {
		var f proto.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return f, fmt.Errorf("read: %w", err)
		}
		fmt.Printf("received: type=%s\n", f.Type)
		if f.Type == proto.TypeError {
			return f, errors.New(f.Code + ": " + f.Text)
		}
		if f.Type == typ && (typ != proto.TypeChatMessage || f.Message != nil) {
			return f, nil
		}
	}
}
