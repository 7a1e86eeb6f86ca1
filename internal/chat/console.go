package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/vovakirdan/incognito-relay/internal/proto"
)

const (
	commandFile = "/file"
	commandQuit = "/quit"
)

// Sender is the part of a session the console drives.
type Sender interface {
	SendText(ctx context.Context, content string)
	SendFile(ctx context.Context, filename string, data []byte)
}

// Console reads typed lines and turns them into sends.
//
//	text        sends a chat line
//	/file PATH  shares the file at PATH under its base name
//	/quit       leaves the chat
type Console struct {
	sender     Sender
	transcript *Transcript
	fs         afero.Fs
}

// NewConsole builds a console reading shared files from fs.
func NewConsole(sender Sender, transcript *Transcript, fs afero.Fs) *Console {
	return &Console{sender: sender, transcript: transcript, fs: fs}
}

// Run consumes in until EOF, /quit or ctx cancellation.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if !c.handle(ctx, line) {
				return nil
			}
		}
	}
}

// handle processes one line and reports whether to keep reading.
func (c *Console) handle(ctx context.Context, line string) bool {
	text := strings.TrimSpace(line)
	switch {
	case text == "":
		return true
	case text == commandQuit:
		return false
	case text == commandFile || strings.HasPrefix(text, commandFile+" "):
		path := strings.TrimSpace(strings.TrimPrefix(text, commandFile))
		if path == "" {
			c.transcript.Render(proto.NewSystem("Usage: /file <path>"))
			return true
		}
		c.shareFile(ctx, path)
		return true
	default:
		c.sender.SendText(ctx, text)
		return true
	}
}

func (c *Console) shareFile(ctx context.Context, path string) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		c.transcript.Render(proto.NewSystem(fmt.Sprintf("Error uploading file: %v", err)))
		return
	}
	c.sender.SendFile(ctx, filepath.Base(path), data)
}
