package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/chatsession"
	"github.com/haivivi/robocare/pkg/hostio"
	"github.com/haivivi/robocare/pkg/resource"
)

type echoBackend struct{}

func (echoBackend) SaveProfile(context.Context, backend.Profile) error { return nil }
func (echoBackend) DetectLanguage(context.Context, string) (string, error) {
	return "en-IN", nil
}
func (echoBackend) Query(_ context.Context, req backend.QueryRequest) (*backend.Answer, error) {
	return &backend.Answer{Text: "you said: " + req.Question, Audio: []byte("mp3"), AudioMIME: "audio/mpeg"}, nil
}
func (echoBackend) Synthesize(context.Context, string) (*backend.Speech, error) {
	return nil, backend.ErrNoSpeech
}
func (echoBackend) AnalyzeImage(context.Context, backend.Image) (string, error) {
	return "", errors.New("no vision")
}

type fixture struct {
	session *chatsession.Session
	bridge  *Bridge
	srv     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith uses p as the session player and attaches it to the
// bridge. A nil p uses a NopPlayer.
func newFixtureWith(t *testing.T, p *Player) *fixture {
	t.Helper()
	var player chatsession.Player = &hostio.NopPlayer{}
	if p != nil {
		player = p
	}
	s, err := chatsession.New(chatsession.Config{Greeting: "Hi!"}, chatsession.Deps{
		Backend:   echoBackend{},
		Player:    player,
		Resources: resource.NewMemory(),
	})
	if err != nil {
		t.Fatal(err)
	}
	b := New(s, nil, nil)
	if p != nil {
		b.AttachPlayer(p)
	}
	srv := httptest.NewServer(b)
	t.Cleanup(func() {
		b.Close()
		srv.Close()
		s.Close(context.Background())
	})
	return &fixture{session: s, bridge: b, srv: srv}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type     string                    `json:"type"`
	State    chatsession.StateSnapshot `json:"state"`
	Messages []Message                 `json:"messages"`
	Action   string                    `json:"action"`
	Error    string                    `json:"error"`
	Kind     string                    `json:"kind"`
	Message  string                    `json:"message"`
	Command  string                    `json:"command"`
	Handle   string                    `json:"handle"`
	URL      string                    `json:"url"`
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		if match(f) {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, a Action) {
	t.Helper()
	if err := conn.WriteJSON(a); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSnapshotOnConnect(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	got := readUntil(t, conn, func(fr frame) bool { return true })
	if got.Type != "snapshot" {
		t.Fatalf("first frame type = %q", got.Type)
	}
	if len(got.Messages) != 1 || got.Messages[0].Text != "Hi!" || got.Messages[0].Sender != "bot" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.State.Language != backend.DefaultLocale {
		t.Errorf("language = %q", got.State.Language)
	}
}

func TestTextAction(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, Action{Type: ActionText, Text: "hello"})
	got := readUntil(t, conn, func(fr frame) bool {
		return fr.Type == "snapshot" && len(fr.Messages) == 3 && !fr.State.Loading
	})
	reply := got.Messages[2]
	if reply.Text != "you said: hello" || reply.Pending {
		t.Fatalf("reply = %+v", reply)
	}
	if got.Messages[1].Sender != "user" || got.Messages[1].Text != "hello" {
		t.Errorf("user message = %+v", got.Messages[1])
	}
	if reply.AudioURL == "" {
		t.Fatal("reply has no audio url")
	}

	resp, err := http.Get(f.srv.URL + reply.AudioURL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "mp3" {
		t.Errorf("GET audio = %d %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestMicUnsupported(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, Action{Type: ActionMic})
	notice := readUntil(t, conn, func(fr frame) bool { return fr.Type == "notice" })
	if notice.Kind != "unsupported" || notice.Message == "" {
		t.Errorf("notice = %+v", notice)
	}
	errFrame := readUntil(t, conn, func(fr frame) bool { return fr.Type == "error" })
	if errFrame.Action != ActionMic {
		t.Errorf("error frame = %+v", errFrame)
	}
}

func TestActionErrors(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		want   string
	}{
		{"unknown", Action{Type: "dance"}, "unknown action"},
		{"bad image", Action{Type: ActionImage, Data: "!!!"}, "decode image"},
		{"empty text", Action{Type: ActionText, Text: "  "}, chatsession.ErrEmptyUtterance.Error()},
		{"no profile", Action{Type: ActionProfile}, "profile is required"},
		{"bad language", Action{Type: ActionLanguage, Name: "klingon"}, chatsession.ErrUnknownLanguage.Error()},
		{"unknown audio", Action{Type: ActionAudio, Handle: "nope"}, chatsession.ErrNotLoaded.Error()},
		{"ended without browser player", Action{Type: ActionEnded, Handle: "nope"}, "not reported by browsers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			conn := f.dial(t)
			send(t, conn, tt.action)
			got := readUntil(t, conn, func(fr frame) bool { return fr.Type == "error" })
			if got.Action != tt.action.Type || !strings.Contains(got.Error, tt.want) {
				t.Errorf("error frame = %+v, want %q", got, tt.want)
			}
		})
	}
}

func TestProfileAction(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, Action{Type: ActionProfile, Profile: &backend.Profile{Age: "40", Gender: "male"}})
	readUntil(t, conn, func(fr frame) bool { return fr.Type == "snapshot" && fr.State.ProfileSubmitted })
	if p, ok := f.session.Profile(); !ok || p.Age != "40" {
		t.Errorf("Profile() = %+v, %v", p, ok)
	}
}

func TestResourceNotFound(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/resources/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCloseDisconnects(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)
	readUntil(t, conn, func(fr frame) bool { return fr.Type == "snapshot" })

	if err := f.bridge.Close(); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for f.bridge.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := f.bridge.Clients(); n != 0 {
		t.Errorf("Clients() = %d after Close", n)
	}
}

func TestImagePreviewIsNotAudio(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, Action{Type: ActionImage, Data: "iVBORw==", MIME: "image/png", Filename: "arm.png"})
	got := readUntil(t, conn, func(fr frame) bool {
		return fr.Type == "snapshot" && len(fr.Messages) == 3 && !fr.State.Loading
	})
	img := got.Messages[1].Image
	if img == nil || img.URL == "" {
		t.Fatalf("image message = %+v", got.Messages[1])
	}
	preview := strings.TrimPrefix(img.URL, "/resources/")

	send(t, conn, Action{Type: ActionAudio, Handle: preview})
	errFrame := readUntil(t, conn, func(fr frame) bool { return fr.Type == "error" })
	if errFrame.Action != ActionAudio || !strings.Contains(errFrame.Error, chatsession.ErrNotLoaded.Error()) {
		t.Errorf("error frame = %+v", errFrame)
	}
	if st := f.session.State(); st.Speaking || !st.ActiveAudio.IsZero() {
		t.Errorf("state = %+v", st)
	}
	resp, err := http.Get(f.srv.URL + img.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET preview = %d", resp.StatusCode)
	}
}

func TestBrowserPlayback(t *testing.T) {
	p := NewPlayer()
	f := newFixtureWith(t, p)
	conn := f.dial(t)
	readUntil(t, conn, func(fr frame) bool { return fr.Type == "snapshot" })

	send(t, conn, Action{Type: ActionText, Text: "hello"})
	play := readUntil(t, conn, func(fr frame) bool { return fr.Type == "player" })
	if play.Command != PlayerPlay || play.Handle == "" || play.URL != "/resources/"+play.Handle {
		t.Fatalf("player frame = %+v", play)
	}
	readUntil(t, conn, func(fr frame) bool { return fr.Type == "snapshot" && fr.State.Speaking })

	// Toggling the playing reply pauses it in the browser.
	send(t, conn, Action{Type: ActionAudio, Handle: play.Handle})
	pause := readUntil(t, conn, func(fr frame) bool { return fr.Type == "player" })
	if pause.Command != PlayerPause || pause.Handle != play.Handle {
		t.Fatalf("player frame = %+v", pause)
	}
	readUntil(t, conn, func(fr frame) bool { return fr.Type == "snapshot" && !fr.State.Speaking })

	send(t, conn, Action{Type: ActionAudio, Handle: play.Handle})
	readUntil(t, conn, func(fr frame) bool { return fr.Type == "player" && fr.Command == PlayerPlay })
	readUntil(t, conn, func(fr frame) bool { return fr.Type == "snapshot" && fr.State.Speaking })

	// A report for other audio is ignored.
	send(t, conn, Action{Type: ActionEnded, Handle: "other"})
	send(t, conn, Action{Type: ActionEnded, Handle: play.Handle})
	got := readUntil(t, conn, func(fr frame) bool { return fr.Type == "snapshot" && !fr.State.Speaking })
	if string(got.State.ActiveAudio) != play.Handle {
		t.Errorf("active audio = %q, want %q", got.State.ActiveAudio, play.Handle)
	}
	if p.Playing() {
		t.Error("player still playing after ended")
	}
}

func TestPlayerEndsWithoutClients(t *testing.T) {
	p := NewPlayer()
	events := make(chan chatsession.PlayerEvent, 1)
	p.Listen(func(ev chatsession.PlayerEvent) { events <- ev })
	p.attach(func(PlayerFrame) int { return 0 })

	if err := p.Play(context.Background()); err == nil {
		t.Fatal("Play without assignment succeeded")
	}
	p.Assign("a1")
	if err := p.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		if ev.Handle != "a1" || ev.Kind != chatsession.PlayerEnded {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no ended event")
	}
}

func TestPlayerFailedReport(t *testing.T) {
	p := NewPlayer()
	var frames []PlayerFrame
	p.attach(func(f PlayerFrame) int { frames = append(frames, f); return 1 })
	var got []chatsession.PlayerEvent
	p.Listen(func(ev chatsession.PlayerEvent) { got = append(got, ev) })

	p.Assign("a1")
	p.Play(context.Background())
	p.finish("a1", chatsession.PlayerFailed, errors.New("decode error"))
	p.finish("a1", chatsession.PlayerEnded, nil)
	p.Assign("")

	if len(got) != 1 || got[0].Kind != chatsession.PlayerFailed || got[0].Err == nil {
		t.Errorf("events = %+v", got)
	}
	if len(frames) != 2 || frames[0].Command != PlayerPlay || frames[1].Command != PlayerStop {
		t.Errorf("frames = %+v", frames)
	}
}
