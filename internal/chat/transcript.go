// Package chat is the terminal presentation layer: it renders relay messages
// as transcript lines and turns typed input into session sends.
package chat

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vovakirdan/incognito-relay/internal/downloads"
	"github.com/vovakirdan/incognito-relay/internal/proto"
	"github.com/vovakirdan/incognito-relay/internal/session"
)

// Transcript writes one block per message. It is safe for concurrent use by
// the receive loop and the input loop.
type Transcript struct {
	mu    sync.Mutex
	out   io.Writer
	saver *downloads.Saver
	now   func() time.Time
}

// NewTranscript renders to out and stores inbound files with saver. A nil
// saver leaves received files unsaved.
func NewTranscript(out io.Writer, saver *downloads.Saver) *Transcript {
	return &Transcript{out: out, saver: saver, now: time.Now}
}

// Render formats m and, for file shares, saves the payload.
func (t *Transcript) Render(m proto.Message) {
	timestamp := m.Timestamp
	if timestamp == "" {
		timestamp = proto.Timestamp(t.now())
	}

	var text string
	switch m.Type {
	case proto.TypeMessage:
		text = fmt.Sprintf("[%s] %s: %s\n", timestamp, m.Username, m.Content)
	case proto.TypeFile:
		text = fmt.Sprintf("[%s] %s shared a file: %s\n", timestamp, m.Username, m.Filename)
		text += t.save(m)
	case proto.TypeConnect:
		// Relays never forward handshakes; nothing to show.
		return
	default:
		text = fmt.Sprintf("System: %s\n", m.Content)
	}
	t.write(text)
}

func (t *Transcript) save(m proto.Message) string {
	if t.saver == nil {
		return ""
	}
	path, err := t.saver.Save(m.Filename, m.Data)
	if err != nil {
		return fmt.Sprintf("Error saving file: %v\n", err)
	}
	return fmt.Sprintf("File saved to: %s\n", path)
}

// Status renders a connection banner for a lifecycle transition.
func (t *Transcript) Status(state session.State, detail string) {
	var text string
	switch state {
	case session.StateConnecting:
		text = "Status: Connecting..."
	case session.StateConnected:
		text = "Status: Connected"
	case session.StateClosed:
		text = "Status: Disconnected - " + detail
	default:
		text = "Status: " + state.String()
	}
	t.write(text + "\n")
}

// ConnectionFailed renders the offline banner shown when the first dial fails.
func (t *Transcript) ConnectionFailed(err error) {
	t.write(fmt.Sprintf("Status: Connection failed - %v\nCould not connect to server. Running in offline mode.\n", err))
}

func (t *Transcript) write(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.out, text)
}
