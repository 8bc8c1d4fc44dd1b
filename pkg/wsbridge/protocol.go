package wsbridge

import (
	"time"

	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/chatlog"
	"github.com/haivivi/robocare/pkg/chatsession"
)

// Action types sent by the client.
const (
	ActionText     = "text"
	ActionSend     = "send"
	ActionImage    = "image"
	ActionMic      = "mic"
	ActionLanguage = "language"
	ActionAudio    = "audio"
	ActionProfile  = "profile"

	// Playback reports from a browser acting as the session Player.
	ActionEnded  = "ended"
	ActionFailed = "failed"
)

// Action is a client to server frame.
type Action struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image: base64 data
	Data     string `json:"data,omitempty"`
	MIME     string `json:"mime,omitempty"`
	Filename string `json:"filename,omitempty"`

	// language
	Name string `json:"name,omitempty"`

	// audio, ended, failed
	Handle string `json:"handle,omitempty"`

	// failed
	Error string `json:"error,omitempty"`

	// profile
	Profile *backend.Profile `json:"profile,omitempty"`
}

// Snapshot is pushed on connect and after every change.
type Snapshot struct {
	Type     string                    `json:"type"`
	State    chatsession.StateSnapshot `json:"state"`
	Messages []Message                 `json:"messages"`
}

// Message is the wire form of a chat message.
type Message struct {
	ID        uint64    `json:"id"`
	Sender    string    `json:"sender"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Image     *ImageRef `json:"image,omitempty"`
	Pending   bool      `json:"pending,omitempty"`
	Language  string    `json:"language,omitempty"`
	Audio     string    `json:"audio,omitempty"`
	AudioURL  string    `json:"audio_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageRef points at an image preview.
type ImageRef struct {
	URL  string `json:"url,omitempty"`
	MIME string `json:"mime,omitempty"`
	Name string `json:"name,omitempty"`
}

// ErrorFrame reports a failed action.
type ErrorFrame struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Error  string `json:"error"`
}

// NoticeFrame carries a user-facing notice.
type NoticeFrame struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func resourceURL(h string) string {
	return "/resources/" + h
}

func encodeMessages(ms []chatlog.Message) []Message {
	out := make([]Message, 0, len(ms))
	for _, m := range ms {
		w := Message{
			ID:        uint64(m.ID),
			Sender:    m.Sender.String(),
			Pending:   m.Pending,
			Language:  m.Language,
			CreatedAt: m.CreatedAt,
		}
		if !m.Audio.IsZero() {
			w.Audio = string(m.Audio)
			w.AudioURL = resourceURL(string(m.Audio))
		}
		switch c := m.Content.(type) {
		case chatlog.Text:
			w.Kind = "text"
			w.Text = string(c)
		case chatlog.Image:
			w.Kind = "image"
			w.Image = &ImageRef{MIME: c.MIME, Name: c.Name}
			if !c.Preview.IsZero() {
				w.Image.URL = resourceURL(string(c.Preview))
			}
		default:
			w.Kind = "unknown"
		}
		out = append(out, w)
	}
	return out
}
