package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/chatlog"
	"github.com/haivivi/robocare/pkg/chatsession"
)

// Theme defines the color scheme for chat rendering.
type Theme struct {
	Primary lipgloss.Color // Robo
	Accent  lipgloss.Color // the user
	Dim     lipgloss.Color // placeholders and metadata
	Alert   lipgloss.Color // notices
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Accent:  lipgloss.Color("#58a6ff"),
	Dim:     lipgloss.Color("#6e7681"),
	Alert:   lipgloss.Color("#f0883e"),
}

// ChatStyles holds all styles derived from a theme.
type ChatStyles struct {
	User    lipgloss.Style
	Bot     lipgloss.Style
	Body    lipgloss.Style
	Pending lipgloss.Style
	Meta    lipgloss.Style
	Notice  lipgloss.Style
	Status  lipgloss.Style

	// Width wraps message bodies when positive.
	Width int
}

// NewChatStyles creates styles from a theme.
func NewChatStyles(t Theme) ChatStyles {
	return ChatStyles{
		User:    lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		Bot:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Body:    lipgloss.NewStyle().PaddingLeft(2),
		Pending: lipgloss.NewStyle().PaddingLeft(2).Italic(true).Foreground(t.Dim),
		Meta:    lipgloss.NewStyle().Foreground(t.Dim),
		Notice:  lipgloss.NewStyle().Bold(true).Foreground(t.Alert),
		Status:  lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// RenderMessage renders one message as a header line and an indented body.
func (s ChatStyles) RenderMessage(m chatlog.Message) string {
	var who string
	switch m.Sender {
	case chatlog.SenderUser:
		who = s.User.Render("You")
	case chatlog.SenderBot:
		who = s.Bot.Render("Robo")
	default:
		who = s.Meta.Render(m.Sender.String())
	}

	meta := []string{fmt.Sprintf("#%d", m.ID)}
	if !m.CreatedAt.IsZero() {
		meta = append(meta, m.CreatedAt.Local().Format("15:04"))
	}
	if m.Language != "" {
		if name, ok := backend.NameFor(m.Language); ok {
			meta = append(meta, name)
		} else {
			meta = append(meta, m.Language)
		}
	}
	if !m.Audio.IsZero() {
		meta = append(meta, "♪ /play "+fmt.Sprint(m.ID))
	}
	header := who + " " + s.Meta.Render(strings.Join(meta, " · "))

	body := s.Body
	if s.Width > 0 {
		body = body.Width(s.Width)
	}
	var text string
	switch c := m.Content.(type) {
	case chatlog.Text:
		if m.Pending {
			return header + "\n" + s.Pending.Render(string(c))
		}
		text = string(c)
	case chatlog.Image:
		name := c.Name
		if name == "" {
			name = "image"
		}
		text = fmt.Sprintf("[photo %s, %s]", name, c.MIME)
	default:
		text = fmt.Sprintf("[%T]", c)
	}
	return header + "\n" + body.Render(text)
}

// RenderMessages renders messages separated by blank lines.
func (s ChatStyles) RenderMessages(ms []chatlog.Message) string {
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		parts = append(parts, s.RenderMessage(m))
	}
	return strings.Join(parts, "\n\n")
}

// RenderStatus renders a one-line summary of the session state.
func (s ChatStyles) RenderStatus(st chatsession.StateSnapshot) string {
	lang := st.Language
	if name, ok := backend.NameFor(lang); ok {
		lang = name
	}
	flags := []string{lang}
	if st.Loading {
		flags = append(flags, "thinking")
	}
	if st.Listening {
		flags = append(flags, "listening")
	}
	if st.Speaking {
		flags = append(flags, "speaking")
	}
	line := "[" + strings.Join(flags, " | ") + "]"
	if st.Listening && st.Transcript != "" {
		line += " " + st.Transcript
	}
	return s.Status.Render(line)
}

// RenderNotice renders a notice for the user.
func (s ChatStyles) RenderNotice(n chatsession.Notice) string {
	return s.Notice.Render("! " + n.Message)
}
