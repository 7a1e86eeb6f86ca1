package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vovakirdan/incognito-relay/internal/proto"
	"github.com/vovakirdan/incognito-relay/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Printf("relay_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:5555", "relay address (host:port or ws://host/ws)")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	bobInbox := make(chan proto.Message, 16)
	bob := session.New(session.Options{
		Username:  "smoke-bob",
		OnMessage: func(m proto.Message) { bobInbox <- m },
	})
	if err := bob.Open(ctx, *addr); err != nil {
		return err
	}
	defer bob.Close()

	alice := session.New(session.Options{
		Username:  "smoke-alice",
		OnMessage: func(proto.Message) {},
	})
	if err := alice.Open(ctx, *addr); err != nil {
		return err
	}
	defer alice.Close()

	if err := expect(ctx, bobInbox, func(m proto.Message) bool {
		return m.Type == proto.TypeSystem && m.Content == "smoke-alice joined the chat"
	}); err != nil {
		return fmt.Errorf("join notice: %w", err)
	}
	fmt.Println("join notice received")

	alice.SendText(ctx, *text)
	if err := expect(ctx, bobInbox, func(m proto.Message) bool {
		return m.Type == proto.TypeMessage && m.Username == "smoke-alice" && m.Content == *text
	}); err != nil {
		return fmt.Errorf("text message: %w", err)
	}
	fmt.Println("text message relayed")

	payload := []byte("0123456789")
	alice.SendFile(ctx, "note.txt", payload)
	if err := expect(ctx, bobInbox, func(m proto.Message) bool {
		return m.Type == proto.TypeFile && m.Filename == "note.txt" && bytes.Equal(m.Data, payload)
	}); err != nil {
		return fmt.Errorf("file share: %w", err)
	}
	fmt.Println("file share relayed")

	_ = alice.Close()
	if err := expect(ctx, bobInbox, func(m proto.Message) bool {
		return m.Type == proto.TypeSystem && m.Content == "smoke-alice left the chat"
	}); err != nil {
		return fmt.Errorf("leave notice: %w", err)
	}
	fmt.Println("leave notice received")
	return nil
}

// expect drains inbox until match accepts a message or ctx expires.
func expect(ctx context.Context, inbox <-chan proto.Message, match func(proto.Message) bool) error {
	for {
		select {
		case m := <-inbox:
			if match(m) {
				return nil
			}
		case <-ctx.Done():
			return errors.New("timed out")
		}
	}
}
