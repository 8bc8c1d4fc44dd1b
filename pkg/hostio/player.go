package hostio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/haivivi/robocare/pkg/chatsession"
	"github.com/haivivi/robocare/pkg/resource"
)

// DefaultPlayCommand plays a file and exits when done.
var DefaultPlayCommand = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}

// listeners is the event fan-out shared by the players.
type listeners struct {
	mu  sync.Mutex
	fns []func(chatsession.PlayerEvent)
}

func (l *listeners) add(fn func(chatsession.PlayerEvent)) {
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
}

func (l *listeners) emit(ev chatsession.PlayerEvent) {
	l.mu.Lock()
	fns := slices.Clone(l.fns)
	l.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// CommandPlayer plays resources by writing them to a temporary file and
// running an external command on it. Pause kills the command; the next
// Play starts from the beginning.
type CommandPlayer struct {
	factory resource.Factory
	command []string

	listeners listeners

	mu       sync.Mutex
	assigned resource.Handle
	proc     *playProc
}

type playProc struct {
	cmd    *exec.Cmd
	file   string
	handle resource.Handle
	killed bool
}

var _ chatsession.Player = (*CommandPlayer)(nil)

// NewCommandPlayer returns a player reading bytes from factory. An empty
// command means DefaultPlayCommand; the file path is appended as the last
// argument.
func NewCommandPlayer(factory resource.Factory, command ...string) *CommandPlayer {
	if len(command) == 0 {
		command = DefaultPlayCommand
	}
	return &CommandPlayer{factory: factory, command: command}
}

// Available reports whether the command can be found in PATH.
func (p *CommandPlayer) Available() bool {
	_, err := exec.LookPath(p.command[0])
	return err == nil
}

func (p *CommandPlayer) Listen(fn func(chatsession.PlayerEvent)) {
	p.listeners.add(fn)
}

func (p *CommandPlayer) Assign(h resource.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h == p.assigned {
		return nil
	}
	p.killLocked()
	p.assigned = h
	return nil
}

func (p *CommandPlayer) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.assigned.IsZero() {
		return errors.New("hostio: no audio assigned")
	}
	if p.proc != nil {
		return nil
	}
	info, err := p.factory.Stat(p.assigned)
	if err != nil {
		return err
	}
	data, err := resource.ReadAll(ctx, p.factory, p.assigned)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp("", "robocare-*"+extFor(info.MIME))
	if err != nil {
		return fmt.Errorf("hostio: temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("hostio: write temp file: %w", err)
	}
	f.Close()

	args := append(append([]string(nil), p.command[1:]...), f.Name())
	cmd := exec.Command(p.command[0], args...)
	if err := cmd.Start(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("hostio: start %s: %w", p.command[0], err)
	}
	proc := &playProc{cmd: cmd, file: f.Name(), handle: p.assigned}
	p.proc = proc
	go p.wait(proc)
	return nil
}

func (p *CommandPlayer) wait(proc *playProc) {
	err := proc.cmd.Wait()
	os.Remove(proc.file)

	p.mu.Lock()
	killed := proc.killed
	if p.proc == proc {
		p.proc = nil
	}
	p.mu.Unlock()
	if killed {
		return
	}
	ev := chatsession.PlayerEvent{Handle: proc.handle, Kind: chatsession.PlayerEnded}
	if err != nil {
		slog.Debug("hostio: player exited", "err", err)
		ev.Kind, ev.Err = chatsession.PlayerFailed, err
	}
	p.listeners.emit(ev)
}

func (p *CommandPlayer) Pause(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killLocked()
	return nil
}

func (p *CommandPlayer) killLocked() {
	if p.proc == nil {
		return
	}
	p.proc.killed = true
	if p.proc.cmd.Process != nil {
		p.proc.cmd.Process.Kill()
	}
	p.proc = nil
}

func extFor(mime string) string {
	switch {
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return ".mp3"
	case strings.Contains(mime, "wav"):
		return ".wav"
	case strings.Contains(mime, "ogg"):
		return ".ogg"
	case strings.Contains(mime, "png"):
		return ".png"
	case strings.Contains(mime, "jpeg"):
		return ".jpg"
	default:
		return ""
	}
}

// NopPlayer accepts every call and reports Ended right after Play. It is
// used when no audio output is configured.
type NopPlayer struct {
	listeners listeners

	mu       sync.Mutex
	assigned resource.Handle
}

var _ chatsession.Player = (*NopPlayer)(nil)

func (p *NopPlayer) Listen(fn func(chatsession.PlayerEvent)) { p.listeners.add(fn) }

func (p *NopPlayer) Assign(h resource.Handle) error {
	p.mu.Lock()
	p.assigned = h
	p.mu.Unlock()
	return nil
}

func (p *NopPlayer) Play(context.Context) error {
	p.mu.Lock()
	h := p.assigned
	p.mu.Unlock()
	go p.listeners.emit(chatsession.PlayerEvent{Handle: h, Kind: chatsession.PlayerEnded})
	return nil
}

func (p *NopPlayer) Pause(context.Context) error { return nil }
