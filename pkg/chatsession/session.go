// Package chatsession coordinates one conversation with Robo: typed text,
// captured speech and uploaded images in; text and spoken replies out.
//
// A Session owns the message log, the explicit state record and the three
// controllers (Speech, Playback, Uploads) plus the Orchestrator. All
// submissions share a single gate, so at most one backend round trip is in
// flight and at most one placeholder is ever in the log. Presentation code
// reads snapshots and waits on change notifications; it never mutates.
package chatsession

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/chatlog"
	"github.com/haivivi/robocare/pkg/resource"
)

// DefaultGreeting is the first bot message of a session.
const DefaultGreeting = "Hi! I'm Robo, your multilingual AI friend."

// Config holds session settings.
type Config struct {
	// ID names the session in the journal. Empty means a new uuid.
	ID string

	// Greeting seeds the log. Empty means DefaultGreeting.
	Greeting string

	// NoGreeting starts with an empty log.
	NoGreeting bool

	// Language is the initial locale. Empty means backend.DefaultLocale.
	Language string

	Pipeline Pipeline

	// RequireProfile rejects submissions until SubmitProfile succeeded.
	RequireProfile bool
}

// Deps are the collaborators of a session. Backend and Player are required.
type Deps struct {
	Backend backend.Backend
	Player  Player

	// Resources creates audio and preview handles. Nil means in memory.
	Resources resource.Factory

	// Recognizer nil means speech recognition is unsupported.
	Recognizer Recognizer

	Notifier Notifier
	Journal  *chatlog.Journal
	Logger   Logger
}

// Session is one conversation.
type Session struct {
	id        string
	log       *chatlog.Log
	state     *State
	backend   backend.Backend
	resources resource.Factory
	journal   *chatlog.Journal
	logger    Logger
	notifiers *notifiers

	speech   *Speech
	playback *Playback
	uploads  *Uploads
	orch     *Orchestrator

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
	ch    chan struct{}

	profileMu sync.Mutex
	profile   backend.Profile

	opMu     sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New creates a session.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Backend == nil {
		return nil, errors.New("chatsession: backend is required")
	}
	if deps.Player == nil {
		return nil, errors.New("chatsession: player is required")
	}
	if deps.Resources == nil {
		deps.Resources = resource.NewMemory()
	}
	if deps.Logger == nil {
		deps.Logger = DefaultLogger()
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Language == "" {
		cfg.Language = backend.DefaultLocale
	}

	s := &Session{
		id:        cfg.ID,
		log:       chatlog.New(),
		backend:   deps.Backend,
		resources: deps.Resources,
		journal:   deps.Journal,
		logger:    deps.Logger,
		notifiers: &notifiers{},
		subs:      make(map[chan struct{}]struct{}),
	}
	s.notifiers.add(deps.Notifier)
	s.state = newState(backend.NormalizeLocale(cfg.Language), s.changed)
	s.log.OnChange(s.changed)
	s.ch, _ = s.Subscribe()

	s.speech = newSpeech(deps.Recognizer, s.state, s.notifiers, s.logger)
	s.playback = newPlayback(s.resources, deps.Player, s.state, s.logger)
	s.uploads = &Uploads{
		factory: s.resources,
		log:     s.log,
		state:   s.state,
		backend: s.backend,
		logger:  s.logger,
	}
	s.orch = &Orchestrator{
		log:            s.log,
		state:          s.state,
		backend:        s.backend,
		speech:         s.speech,
		playback:       s.playback,
		logger:         s.logger,
		pipeline:       cfg.Pipeline,
		requireProfile: cfg.RequireProfile,
	}

	if !cfg.NoGreeting {
		greeting := cfg.Greeting
		if greeting == "" {
			greeting = DefaultGreeting
		}
		s.log.Append(chatlog.SenderBot, chatlog.Text(greeting))
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Messages returns a snapshot of the log.
func (s *Session) Messages() []chatlog.Message { return s.log.Snapshot() }

// Message returns the message with the given id.
func (s *Session) Message(id chatlog.ID) (chatlog.Message, bool) { return s.log.Get(id) }

// State returns a snapshot of the state.
func (s *Session) State() StateSnapshot { return s.state.Snapshot() }

// Busy reports whether a submission is in flight.
func (s *Session) Busy() bool { return s.state.Busy() }

// Resources returns the factory behind audio and preview handles.
func (s *Session) Resources() resource.Factory { return s.resources }

// Changes returns the session's default change channel. A receive means
// the state or log changed at least once since the previous receive.
func (s *Session) Changes() <-chan struct{} { return s.ch }

// Subscribe returns a new coalesced change channel and a function that
// unsubscribes it.
func (s *Session) Subscribe() (chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}
}

// OnNotice registers an additional notifier.
func (s *Session) OnNotice(n Notifier) {
	s.notifiers.add(n)
}

func (s *Session) changed() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// begin registers an in-flight operation.
func (s *Session) begin() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.inflight.Add(1)
	return nil
}

// Submit sends a typed or spoken utterance.
func (s *Session) Submit(ctx context.Context, utterance string) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.inflight.Done()
	if err := s.orch.Submit(ctx, utterance); err != nil {
		return err
	}
	s.saveJournal(ctx)
	return nil
}

// SubmitTranscript submits the live speech transcript. On ErrBusy the
// transcript is kept so it can be sent again.
func (s *Session) SubmitTranscript(ctx context.Context) error {
	return s.Submit(ctx, s.state.Snapshot().Transcript)
}

// SubmitImage uploads an image for analysis.
func (s *Session) SubmitImage(ctx context.Context, img backend.Image) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.inflight.Done()
	if s.orch.requireProfile && !s.state.Snapshot().ProfileSubmitted {
		return ErrProfileRequired
	}
	if err := s.uploads.SubmitImage(ctx, img); err != nil {
		return err
	}
	s.saveJournal(ctx)
	return nil
}

// ToggleMic starts or stops speech capture.
func (s *Session) ToggleMic(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.inflight.Done()
	return s.speech.Toggle(ctx)
}

// SelectLanguage switches language by name, e.g. "tamil".
func (s *Session) SelectLanguage(ctx context.Context, name string) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.inflight.Done()
	return s.speech.SelectLanguage(ctx, name)
}

// ToggleAudio plays or pauses the audio of a reply.
func (s *Session) ToggleAudio(ctx context.Context, h resource.Handle) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.inflight.Done()
	return s.playback.Toggle(ctx, h)
}

// SubmitProfile saves p with the backend. On failure the profile stays
// unsubmitted and may be submitted again.
func (s *Session) SubmitProfile(ctx context.Context, p backend.Profile) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.inflight.Done()

	s.profileMu.Lock()
	defer s.profileMu.Unlock()
	if s.state.Snapshot().ProfileSubmitted {
		return ErrProfileSubmitted
	}
	if err := s.backend.SaveProfile(ctx, p); err != nil {
		s.logger.WarnPrintf("save profile: %v", err)
		return err
	}
	s.profile = p
	s.state.setProfileSubmitted()
	return nil
}

// Profile returns the submitted profile.
func (s *Session) Profile() (backend.Profile, bool) {
	s.profileMu.Lock()
	defer s.profileMu.Unlock()
	return s.profile, s.state.Snapshot().ProfileSubmitted
}

func (s *Session) saveJournal(ctx context.Context) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Save(ctx, s.id, s.log.Snapshot()); err != nil {
		s.logger.WarnPrintf("save journal: %v", err)
	}
}

// Close waits for in-flight operations, stops capture, releases every
// resource the session created and saves the journal. It is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.opMu.Lock()
	if s.closed {
		s.opMu.Unlock()
		return nil
	}
	s.closed = true
	s.opMu.Unlock()
	s.inflight.Wait()

	err := s.speech.Close(ctx)
	s.playback.Close(ctx)
	s.uploads.Close(ctx)
	s.saveJournal(ctx)
	return err
}
