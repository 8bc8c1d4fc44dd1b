package commands

import (
	"context"
	"time"

	"github.com/haivivi/robocare/pkg/chatlog"
	"github.com/haivivi/robocare/pkg/chatsession"
	"github.com/haivivi/robocare/pkg/cli"
)

// messageView is the --format form of a message.
type messageView struct {
	ID        uint64    `json:"id" yaml:"id"`
	Sender    string    `json:"sender" yaml:"sender"`
	Kind      string    `json:"kind" yaml:"kind"`
	Text      string    `json:"text,omitempty" yaml:"text,omitempty"`
	Image     string    `json:"image,omitempty" yaml:"image,omitempty"`
	MIME      string    `json:"mime,omitempty" yaml:"mime,omitempty"`
	Language  string    `json:"language,omitempty" yaml:"language,omitempty"`
	Audio     bool      `json:"audio,omitempty" yaml:"audio,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

func newMessageView(m chatlog.Message) messageView {
	v := messageView{
		ID:        uint64(m.ID),
		Sender:    m.Sender.String(),
		Language:  m.Language,
		Audio:     !m.Audio.IsZero(),
		CreatedAt: m.CreatedAt,
	}
	switch c := m.Content.(type) {
	case chatlog.Text:
		v.Kind = "text"
		v.Text = string(c)
	case chatlog.Image:
		v.Kind = "image"
		v.Image = c.Name
		v.MIME = c.MIME
	}
	return v
}

func messageViews(ms []chatlog.Message) []messageView {
	out := make([]messageView, 0, len(ms))
	for _, m := range ms {
		out = append(out, newMessageView(m))
	}
	return out
}

// replyView is the --format form of ask and image results.
type replyView struct {
	Session string      `json:"session" yaml:"session"`
	Reply   messageView `json:"reply" yaml:"reply"`
	Elapsed string      `json:"elapsed" yaml:"elapsed"`
}

func chatStyles() cli.ChatStyles {
	return cli.NewChatStyles(cli.DefaultTheme)
}

// lastReply returns the newest terminal bot message.
func lastReply(ms []chatlog.Message) (chatlog.Message, bool) {
	for i := len(ms) - 1; i >= 0; i-- {
		if ms[i].Sender == chatlog.SenderBot && !ms[i].Pending {
			return ms[i], true
		}
	}
	return chatlog.Message{}, false
}

// waitSpeaking blocks until the session stops speaking.
func waitSpeaking(ctx context.Context, s *chatsession.Session) error {
	changes, cancel := s.Subscribe()
	defer cancel()
	for s.State().Speaking {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
		}
	}
	return nil
}
