package chatsession

import (
	"context"
	"fmt"

	"github.com/haivivi/robocare/pkg/resource"
)

// RecognizeOptions configures a recognition run.
type RecognizeOptions struct {
	Locale     string
	Continuous bool
}

// Recognizer is a host speech-to-text engine.
type Recognizer interface {
	// Supported reports whether recognition is available at all.
	Supported() bool

	// Start begins capture. onTranscript receives the full transcript so
	// far each time it changes. Start returns ErrAccessDenied when the
	// microphone cannot be opened.
	Start(ctx context.Context, opts RecognizeOptions, onTranscript func(string)) error

	// Stop ends capture. Once Stop returns no further callbacks from the
	// stopped run are delivered.
	Stop(ctx context.Context) error

	// Reset discards the transcript accumulated by the current run. The
	// next callback carries only speech heard after Reset.
	Reset()
}

// PlayerEventKind is what happened to the assigned audio.
type PlayerEventKind int

const (
	PlayerEnded PlayerEventKind = iota
	PlayerFailed
)

func (k PlayerEventKind) String() string {
	switch k {
	case PlayerEnded:
		return "ended"
	case PlayerFailed:
		return "failed"
	default:
		return fmt.Sprintf("PlayerEventKind(%d)", int(k))
	}
}

// PlayerEvent reports the end of playback of Handle.
type PlayerEvent struct {
	Handle resource.Handle
	Kind   PlayerEventKind
	Err    error
}

// Player is a host audio output with one assigned source.
//
// Listeners must not be invoked synchronously from Play or Pause.
type Player interface {
	// Assign sets the source. The zero handle detaches it.
	Assign(h resource.Handle) error

	// Play starts or resumes the assigned source.
	Play(ctx context.Context) error

	// Pause stops output, keeping the position where supported.
	Pause(ctx context.Context) error

	// Listen registers fn for ended / failed events.
	Listen(fn func(PlayerEvent))
}
