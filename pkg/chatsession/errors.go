package chatsession

import "errors"

var (
	// ErrBusy is returned when a submission arrives while another one is
	// in flight. Typed text, speech and image uploads share one gate.
	ErrBusy = errors.New("chatsession: busy")

	ErrEmptyUtterance   = errors.New("chatsession: empty utterance")
	ErrEmptyImage       = errors.New("chatsession: empty image")
	ErrProfileRequired  = errors.New("chatsession: profile required")
	ErrProfileSubmitted = errors.New("chatsession: profile already submitted")

	// ErrUnsupported is returned when the host has no speech recognition.
	ErrUnsupported = errors.New("chatsession: speech recognition not supported")

	// ErrAccessDenied is returned by recognizers that cannot open the
	// microphone.
	ErrAccessDenied = errors.New("chatsession: microphone access denied")

	// ErrNotLoaded is returned when toggling audio that was released or
	// never loaded.
	ErrNotLoaded = errors.New("chatsession: audio not loaded")

	ErrUnknownLanguage = errors.New("chatsession: unknown language")
	ErrClosed          = errors.New("chatsession: closed")
)
