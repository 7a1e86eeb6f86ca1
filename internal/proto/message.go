package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type discriminates the wire message kinds.
type Type string

const (
	TypeConnect Type = "connect"
	TypeMessage Type = "message"
	TypeFile    Type = "file"
	TypeSystem  Type = "system"

	// TimestampLayout is the sender-assigned wall clock format.
	TimestampLayout = "15:04:05"
)

// ErrMalformedMessage is returned by Decode for anything that is not a well-formed message.
var ErrMalformedMessage = errors.New("malformed message")

// Message is the unit exchanged between sessions and the relay.
// Which fields are populated depends on Type.
type Message struct {
	Type      Type
	Username  string
	Content   string
	Filename  string
	Data      []byte
	Timestamp string
}

// wire mirrors the JSON object on the wire. Pointers let Decode tell an
// absent field from an empty one. Data is base64 through encoding/json.
type wire struct {
	Type      Type    `json:"type"`
	Username  *string `json:"username,omitempty"`
	Content   *string `json:"content,omitempty"`
	Filename  *string `json:"filename,omitempty"`
	Data      *[]byte `json:"data,omitempty"`
	Timestamp *string `json:"timestamp,omitempty"`
}

// Timestamp formats t the way senders stamp messages.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// NewConnect builds the handshake message sent right after the transport connects.
func NewConnect(username string) Message {
	return Message{Type: TypeConnect, Username: username}
}

// NewText builds a chat line stamped with now.
func NewText(username, content string, now time.Time) Message {
	return Message{Type: TypeMessage, Username: username, Content: content, Timestamp: Timestamp(now)}
}

// NewFile builds a file share stamped with now. The payload is copied.
func NewFile(username, filename string, data []byte, now time.Time) Message {
	payload := make([]byte, len(data))
	copy(payload, data)
	return Message{Type: TypeFile, Username: username, Filename: filename, Data: payload, Timestamp: Timestamp(now)}
}

// NewSystem builds a relay or local notice.
func NewSystem(content string) Message {
	return Message{Type: TypeSystem, Content: content}
}

// JoinedNotice is broadcast when a session completes its handshake.
func JoinedNotice(username string) Message {
	return NewSystem(username + " joined the chat")
}

// LeftNotice is broadcast when a registered session goes away.
func LeftNotice(username string) Message {
	return NewSystem(username + " left the chat")
}

// Encode serializes m into its JSON wire form. Only the fields belonging to
// m.Type are written.
func Encode(m Message) ([]byte, error) {
	w := wire{Type: m.Type}
	switch m.Type {
	case TypeConnect:
		w.Username = &m.Username
	case TypeMessage:
		w.Username = &m.Username
		w.Content = &m.Content
		w.Timestamp = &m.Timestamp
	case TypeFile:
		data := m.Data
		if data == nil {
			data = []byte{}
		}
		w.Username = &m.Username
		w.Filename = &m.Filename
		w.Data = &data
		w.Timestamp = &m.Timestamp
	case TypeSystem:
		w.Content = &m.Content
	default:
		return nil, fmt.Errorf("encode: unknown message type %q", m.Type)
	}
	return json.Marshal(w)
}

// Decode parses a JSON wire message. Every failure wraps ErrMalformedMessage.
func Decode(b []byte) (Message, error) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	m := Message{Type: w.Type}
	var missing string
	switch w.Type {
	case TypeConnect:
		missing = require(&m.Username, w.Username, "username")
	case TypeMessage:
		missing = first(
			require(&m.Username, w.Username, "username"),
			require(&m.Content, w.Content, "content"),
			require(&m.Timestamp, w.Timestamp, "timestamp"),
		)
	case TypeFile:
		missing = first(
			require(&m.Username, w.Username, "username"),
			require(&m.Filename, w.Filename, "filename"),
			require(&m.Timestamp, w.Timestamp, "timestamp"),
		)
		if w.Data == nil {
			missing = first(missing, "data")
		} else {
			m.Data = *w.Data
			if m.Data == nil {
				m.Data = []byte{}
			}
		}
	case TypeSystem:
		missing = require(&m.Content, w.Content, "content")
	case "":
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, w.Type)
	}
	if missing != "" {
		return Message{}, fmt.Errorf("%w: %s message without %s", ErrMalformedMessage, w.Type, missing)
	}
	return m, nil
}

func require(dst *string, src *string, name string) string {
	if src == nil {
		return name
	}
	*dst = *src
	return ""
}

func first(names ...string) string {
	for _, n := range names {
		if n != "" {
			return n
		}
	}
	return ""
}
