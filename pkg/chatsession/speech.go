package chatsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/haivivi/robocare/pkg/backend"
)

// Speech drives the host recognizer: Idle or Listening.
//
// Calls are serialized by mu, so a restart's Stop always completes before
// its Start. Transcript callbacks from a stopped run are dropped by
// comparing their generation with the current one.
type Speech struct {
	mu       sync.Mutex
	rec      Recognizer
	state    *State
	notifier Notifier
	log      Logger

	gen atomic.Uint64
}

func newSpeech(rec Recognizer, state *State, notifier Notifier, log Logger) *Speech {
	return &Speech{rec: rec, state: state, notifier: notifier, log: log}
}

// Toggle starts capture when idle and stops it when listening.
func (s *Speech) Toggle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Snapshot().Listening {
		return s.stopLocked(ctx)
	}
	return s.startLocked(ctx)
}

func (s *Speech) supported() bool {
	return s.rec != nil && s.rec.Supported()
}

func (s *Speech) startLocked(ctx context.Context) error {
	if !s.supported() {
		s.notifier.Notify(newNotice(NoticeUnsupported))
		return ErrUnsupported
	}
	s.state.setTranscript("")
	if err := s.run(ctx); err != nil {
		s.notifier.Notify(newNotice(NoticeAccessDenied))
		if errors.Is(err, ErrAccessDenied) {
			return err
		}
		return fmt.Errorf("chatsession: start recognition: %w", err)
	}
	s.state.setListening(true)
	return nil
}

// run starts a new recognition run at the current language.
func (s *Speech) run(ctx context.Context) error {
	gen := s.gen.Add(1)
	opts := RecognizeOptions{Locale: s.state.Snapshot().Language, Continuous: true}
	err := s.rec.Start(ctx, opts, func(text string) {
		if s.gen.Load() == gen {
			s.state.setTranscript(text)
		}
	})
	if err != nil {
		s.gen.Add(1)
	}
	return err
}

func (s *Speech) stopLocked(ctx context.Context) error {
	s.gen.Add(1)
	err := s.rec.Stop(ctx)
	s.state.setListening(false)
	if err != nil {
		s.log.WarnPrintf("stop recognition: %v", err)
		return fmt.Errorf("chatsession: stop recognition: %w", err)
	}
	return nil
}

// restart moves a listening recognizer to the current language. It does
// nothing when idle. Listening stays true unless the new run fails.
func (s *Speech) restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Snapshot().Listening {
		return nil
	}
	s.gen.Add(1)
	if err := s.rec.Stop(ctx); err != nil {
		s.log.WarnPrintf("stop recognition for restart: %v", err)
	}
	if err := s.run(ctx); err != nil {
		s.state.setListening(false)
		s.notifier.Notify(newNotice(NoticeAccessDenied))
		return fmt.Errorf("chatsession: restart recognition: %w", err)
	}
	return nil
}

// ChangeLanguage switches to locale, restarting capture if listening and
// the locale actually changed.
func (s *Speech) ChangeLanguage(ctx context.Context, locale string) error {
	if !s.state.setLanguage(locale) {
		return nil
	}
	return s.restart(ctx)
}

// SelectLanguage switches to a language by menu name ("hindi") and clears
// the live transcript.
func (s *Speech) SelectLanguage(ctx context.Context, name string) error {
	locale, ok := backend.LocaleFor(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
	}
	s.ResetTranscript()
	return s.ChangeLanguage(ctx, locale)
}

// ResetTranscript clears the live transcript in the state and in the
// running recognizer.
func (s *Speech) ResetTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.setTranscript("")
	if s.rec != nil && s.state.Snapshot().Listening {
		s.rec.Reset()
	}
}

// Close stops capture if listening.
func (s *Speech) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Snapshot().Listening {
		return nil
	}
	return s.stopLocked(ctx)
}
