package chatsession

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/chatlog"
	"github.com/haivivi/robocare/pkg/kv"
	"github.com/haivivi/robocare/pkg/resource"
)

var errBackend = errors.New("backend down")

// fakeBackend answers from fields; nil hooks use the defaults.
type fakeBackend struct {
	mu sync.Mutex

	language  string
	detectErr error
	answer    backend.Answer
	queryErr  error
	speech    *backend.Speech
	synthErr  error
	analysis  string
	imageErr  error
	saveErr   error

	// onQuery runs inside Query before it returns.
	onQuery func(req backend.QueryRequest)

	queries   []backend.QueryRequest
	synthText []string
	profiles  []backend.Profile
}

func (b *fakeBackend) SaveProfile(_ context.Context, p backend.Profile) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.profiles = append(b.profiles, p)
	return nil
}

func (b *fakeBackend) DetectLanguage(context.Context, string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.language, b.detectErr
}

func (b *fakeBackend) Query(_ context.Context, req backend.QueryRequest) (*backend.Answer, error) {
	b.mu.Lock()
	b.queries = append(b.queries, req)
	hook := b.onQuery
	ans, err := b.answer, b.queryErr
	b.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	if err != nil {
		return nil, err
	}
	if !req.WantAudio {
		ans.Audio, ans.AudioMIME = nil, ""
	}
	return &ans, nil
}

func (b *fakeBackend) Synthesize(_ context.Context, text string) (*backend.Speech, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.synthText = append(b.synthText, text)
	if b.synthErr != nil {
		return nil, b.synthErr
	}
	if b.speech == nil {
		return nil, backend.ErrNoSpeech
	}
	return b.speech, nil
}

func (b *fakeBackend) AnalyzeImage(context.Context, backend.Image) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.analysis, b.imageErr
}

// fakeRecognizer records calls in order.
type fakeRecognizer struct {
	mu          sync.Mutex
	unsupported bool
	startErr    error
	calls       []string
	callbacks   []func(string)
	resets      int

	// onCall runs on every Start and Stop, e.g. to observe state.
	onCall func(call string)
}

func (r *fakeRecognizer) Supported() bool { return !r.unsupported }

func (r *fakeRecognizer) Start(_ context.Context, opts RecognizeOptions, fn func(string)) error {
	r.mu.Lock()
	r.calls = append(r.calls, "start:"+opts.Locale)
	hook := r.onCall
	err := r.startErr
	if err == nil {
		r.callbacks = append(r.callbacks, fn)
	}
	r.mu.Unlock()
	if hook != nil {
		hook("start:" + opts.Locale)
	}
	return err
}

func (r *fakeRecognizer) Stop(context.Context) error {
	r.mu.Lock()
	r.calls = append(r.calls, "stop")
	hook := r.onCall
	r.mu.Unlock()
	if hook != nil {
		hook("stop")
	}
	return nil
}

func (r *fakeRecognizer) Reset() {
	r.mu.Lock()
	r.resets++
	r.mu.Unlock()
}

func (r *fakeRecognizer) Resets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets
}

func (r *fakeRecognizer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// say invokes the callback of the run'th started run.
func (r *fakeRecognizer) say(run int, text string) {
	r.mu.Lock()
	fn := r.callbacks[run]
	r.mu.Unlock()
	fn(text)
}

// fakePlayer records calls; events are fired by the test with emit.
type fakePlayer struct {
	mu       sync.Mutex
	assigned resource.Handle
	calls    []string
	listener func(PlayerEvent)
}

func (p *fakePlayer) Assign(h resource.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assigned = h
	p.calls = append(p.calls, "assign:"+string(h))
	return nil
}

func (p *fakePlayer) Play(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "play")
	return nil
}

func (p *fakePlayer) Pause(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "pause")
	return nil
}

func (p *fakePlayer) Listen(fn func(PlayerEvent)) {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
}

func (p *fakePlayer) emit(kind PlayerEventKind) {
	p.mu.Lock()
	fn, h := p.listener, p.assigned
	p.mu.Unlock()
	fn(PlayerEvent{Handle: h, Kind: kind})
}

func (p *fakePlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(x Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, x)
	n.mu.Unlock()
}

func (n *recordingNotifier) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

type harness struct {
	s        *Session
	backend  *fakeBackend
	rec      *fakeRecognizer
	player   *fakePlayer
	notifier *recordingNotifier
	res      *resource.Memory
	journal  *chatlog.Journal

	mu         sync.Mutex
	maxPending int
	sawPending bool
}

func newHarness(t *testing.T, cfg Config, b *fakeBackend) *harness {
	t.Helper()
	if b == nil {
		b = &fakeBackend{language: "en-IN"}
	}
	h := &harness{
		backend:  b,
		rec:      &fakeRecognizer{},
		player:   &fakePlayer{},
		notifier: &recordingNotifier{},
		res:      resource.NewMemory(),
		journal:  chatlog.NewJournal(kv.NewMemory()),
	}
	cfg.NoGreeting = cfg.Greeting == ""
	s, err := New(cfg, Deps{
		Backend:    b,
		Player:     h.player,
		Resources:  h.res,
		Recognizer: h.rec,
		Notifier:   h.notifier,
		Journal:    h.journal,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.s = s
	s.log.OnChange(func() {
		n := 0
		for _, m := range s.log.Snapshot() {
			if m.Pending {
				n++
			}
		}
		h.mu.Lock()
		h.maxPending = max(h.maxPending, n)
		h.sawPending = h.sawPending || n > 0
		h.mu.Unlock()
	})
	t.Cleanup(func() { s.Close(context.Background()) })
	return h
}

func (h *harness) pendingStats() (maxN int, saw bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxPending, h.sawPending
}

type entry struct {
	sender chatlog.Sender
	text   string
	image  bool
}

func logEntries(msgs []chatlog.Message) []entry {
	out := make([]entry, len(msgs))
	for i, m := range msgs {
		e := entry{sender: m.Sender}
		switch c := m.Content.(type) {
		case chatlog.Text:
			e.text = string(c)
		case chatlog.Image:
			e.image = true
		}
		out[i] = e
	}
	return out
}

func assertLog(t *testing.T, got []chatlog.Message, want ...entry) {
	t.Helper()
	g := logEntries(got)
	if len(g) != len(want) {
		t.Fatalf("log = %+v, want %+v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("log[%d] = %+v, want %+v (log %+v)", i, g[i], want[i], g)
		}
	}
}

func user(text string) entry { return entry{sender: chatlog.SenderUser, text: text} }
func bot(text string) entry  { return entry{sender: chatlog.SenderBot, text: text} }
func userImage() entry       { return entry{sender: chatlog.SenderUser, image: true} }
