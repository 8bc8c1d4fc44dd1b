// Package hostio provides terminal implementations of the host
// capabilities a chat session needs: a dictation "recognizer" fed with
// typed lines, a player that shells out to an audio command, and a notice
// printer.
package hostio

import (
	"context"
	"strings"
	"sync"

	"github.com/haivivi/robocare/pkg/chatsession"
)

// Dictation is a Recognizer whose speech arrives as text lines via Feed.
// It lets the speech flow of a session be driven from a terminal or a
// test without a microphone.
type Dictation struct {
	unsupported bool
	denied      bool

	mu      sync.Mutex
	running bool
	locale  string
	words   []string
	fn      func(string)
}

var _ chatsession.Recognizer = (*Dictation)(nil)

// DictationOption configures a Dictation.
type DictationOption func(*Dictation)

// Unsupported makes Supported report false.
func Unsupported() DictationOption {
	return func(d *Dictation) { d.unsupported = true }
}

// Denied makes Start fail with chatsession.ErrAccessDenied, as if no
// input device were available.
func Denied() DictationOption {
	return func(d *Dictation) { d.denied = true }
}

// NewDictation returns an idle Dictation.
func NewDictation(opts ...DictationOption) *Dictation {
	d := &Dictation{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dictation) Supported() bool {
	return !d.unsupported
}

func (d *Dictation) Start(_ context.Context, opts chatsession.RecognizeOptions, onTranscript func(string)) error {
	if d.denied {
		return chatsession.ErrAccessDenied
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	d.locale = opts.Locale
	d.words = nil
	d.fn = onTranscript
	return nil
}

func (d *Dictation) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.fn = nil
	d.words = nil
	return nil
}

// Reset drops the words dictated so far.
func (d *Dictation) Reset() {
	d.mu.Lock()
	d.words = nil
	d.mu.Unlock()
}

// Feed appends line to the running transcript. It reports false when
// dictation is not running.
func (d *Dictation) Feed(line string) bool {
	line = strings.TrimSpace(line)
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return false
	}
	if line != "" {
		d.words = append(d.words, line)
	}
	text, fn := strings.Join(d.words, " "), d.fn
	d.mu.Unlock()
	if fn != nil {
		fn(text)
	}
	return true
}

// Listening reports whether a run is active.
func (d *Dictation) Listening() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Locale returns the locale of the current or last run.
func (d *Dictation) Locale() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locale
}
