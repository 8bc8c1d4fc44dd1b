package chatsession

import (
	"sync"

	"github.com/haivivi/robocare/pkg/resource"
)

// StateSnapshot is a copy of the session state for presentation.
type StateSnapshot struct {
	Language  string `json:"language" yaml:"language"`
	Loading   bool   `json:"loading" yaml:"loading"`
	Listening bool   `json:"listening" yaml:"listening"`

	// Speaking is true from Play until the Player reports ended or failed,
	// or until pause. It is only as accurate as the Player: a NopPlayer
	// ends at once.
	Speaking         bool            `json:"speaking" yaml:"speaking"`
	ActiveAudio      resource.Handle `json:"active_audio,omitempty" yaml:"active_audio,omitempty"`
	Transcript       string          `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	ProfileSubmitted bool            `json:"profile_submitted" yaml:"profile_submitted"`
}

// State is the mutable session state. Every setter is atomic with respect
// to Snapshot and calls the change hook, outside the lock, only when the
// value actually changed.
type State struct {
	mu   sync.Mutex
	s    StateSnapshot
	busy bool

	changed func()
}

func newState(locale string, changed func()) *State {
	if changed == nil {
		changed = func() {}
	}
	return &State{s: StateSnapshot{Language: locale}, changed: changed}
}

// Snapshot returns a copy of the state.
func (st *State) Snapshot() StateSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

func (st *State) update(fn func(s *StateSnapshot)) bool {
	st.mu.Lock()
	before := st.s
	fn(&st.s)
	changed := before != st.s
	st.mu.Unlock()
	if changed {
		st.changed()
	}
	return changed
}

// setLanguage reports whether the language changed.
func (st *State) setLanguage(locale string) bool {
	return st.update(func(s *StateSnapshot) { s.Language = locale })
}

func (st *State) setLoading(v bool) {
	st.update(func(s *StateSnapshot) { s.Loading = v })
}

func (st *State) setListening(v bool) {
	st.update(func(s *StateSnapshot) { s.Listening = v })
}

func (st *State) setSpeaking(v bool) {
	st.update(func(s *StateSnapshot) { s.Speaking = v })
}

func (st *State) setActiveAudio(h resource.Handle) {
	st.update(func(s *StateSnapshot) { s.ActiveAudio = h })
}

func (st *State) setTranscript(text string) {
	st.update(func(s *StateSnapshot) { s.Transcript = text })
}

func (st *State) setProfileSubmitted() {
	st.update(func(s *StateSnapshot) { s.ProfileSubmitted = true })
}

// tryAcquire takes the submission gate. It fails while another submission
// holds it.
func (st *State) tryAcquire() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.busy {
		return false
	}
	st.busy = true
	return true
}

func (st *State) release() {
	st.mu.Lock()
	st.busy = false
	st.mu.Unlock()
}

// Busy reports whether a submission is in flight.
func (st *State) Busy() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.busy
}
