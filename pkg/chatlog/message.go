// Package chatlog holds the ordered conversation between the user and Robo.
//
// The log is append-only for terminal messages. A single pending bot
// placeholder may exist at a time; it is addressed by the *Pending handle
// returned from AppendPending and is replaced, never edited, when the reply
// arrives.
package chatlog

import (
	"fmt"
	"time"

	"github.com/haivivi/robocare/pkg/resource"
)

// ID is a message identifier. IDs grow monotonically from 1.
type ID uint64

// Sender is who authored a message.
type Sender int

const (
	SenderUser Sender = iota
	SenderBot
)

func (s Sender) String() string {
	switch s {
	case SenderUser:
		return "user"
	case SenderBot:
		return "bot"
	default:
		return fmt.Sprintf("Sender(%d)", int(s))
	}
}

// ParseSender parses the String form of a Sender.
func ParseSender(s string) (Sender, error) {
	switch s {
	case "user":
		return SenderUser, nil
	case "bot":
		return SenderBot, nil
	}
	return 0, fmt.Errorf("chatlog: unknown sender %q", s)
}

// Content is the body of a message: Text or Image.
type Content interface {
	content()
}

// Text is a plain text body.
type Text string

// Image is an uploaded picture. Preview is a local resource for display;
// it is owned by whoever created it, not by the log.
type Image struct {
	Preview resource.Handle
	MIME    string
	Name    string
}

func (Text) content()  {}
func (Image) content() {}

// PlaceholderText is the body of the pending placeholder.
const PlaceholderText = "Thinking..."

// Message is one entry in the log.
type Message struct {
	ID        ID
	Sender    Sender
	Content   Content
	Pending   bool
	Language  string
	Audio     resource.Handle
	CreatedAt time.Time
}

// Text returns the text body of m, or "" for non-text content.
func (m Message) Text() string {
	if t, ok := m.Content.(Text); ok {
		return string(t)
	}
	return ""
}

// Option configures an appended message.
type Option func(*Message)

// WithLanguage sets the locale the message was written in.
func WithLanguage(locale string) Option {
	return func(m *Message) { m.Language = locale }
}

// WithAudio attaches a playable resource to the message.
func WithAudio(h resource.Handle) Option {
	return func(m *Message) { m.Audio = h }
}

// Result is what a pending placeholder resolves to.
type Result struct {
	Content  Content
	Language string
	Audio    resource.Handle
}
