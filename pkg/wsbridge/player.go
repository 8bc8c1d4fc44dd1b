package wsbridge

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/haivivi/robocare/pkg/chatsession"
	"github.com/haivivi/robocare/pkg/resource"
)

// Player commands pushed to browsers.
const (
	PlayerPlay  = "play"
	PlayerPause = "pause"
	PlayerStop  = "stop"
)

// PlayerFrame tells browsers what to do with the session audio.
type PlayerFrame struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Handle  string `json:"handle,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Player is a chatsession.Player whose output is the connected browsers.
// Play and Pause are broadcast as player frames and browsers report the
// end of playback with ended or failed actions. While no browser is
// connected, Play ends right away.
type Player struct {
	mu       sync.Mutex
	assigned resource.Handle
	playing  bool
	send     func(PlayerFrame) int
	fns      []func(chatsession.PlayerEvent)
}

var _ chatsession.Player = (*Player)(nil)

// NewPlayer returns a player with no bridge attached.
func NewPlayer() *Player {
	return &Player{}
}

func (p *Player) Listen(fn func(chatsession.PlayerEvent)) {
	p.mu.Lock()
	p.fns = append(p.fns, fn)
	p.mu.Unlock()
}

func (p *Player) Assign(h resource.Handle) error {
	p.mu.Lock()
	p.assigned = h
	p.playing = false
	send := p.send
	p.mu.Unlock()
	if h.IsZero() && send != nil {
		send(PlayerFrame{Type: "player", Command: PlayerStop})
	}
	return nil
}

func (p *Player) Play(context.Context) error {
	p.mu.Lock()
	h, send := p.assigned, p.send
	if h.IsZero() {
		p.mu.Unlock()
		return errors.New("wsbridge: no audio assigned")
	}
	p.playing = true
	p.mu.Unlock()

	f := PlayerFrame{Type: "player", Command: PlayerPlay, Handle: string(h), URL: resourceURL(string(h))}
	if send == nil || send(f) == 0 {
		go p.finish(h, chatsession.PlayerEnded, nil)
	}
	return nil
}

func (p *Player) Pause(context.Context) error {
	p.mu.Lock()
	h, send := p.assigned, p.send
	p.playing = false
	p.mu.Unlock()
	if send != nil && !h.IsZero() {
		send(PlayerFrame{Type: "player", Command: PlayerPause, Handle: string(h)})
	}
	return nil
}

// Playing reports whether the assigned audio is playing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) attach(send func(PlayerFrame) int) {
	p.mu.Lock()
	p.send = send
	p.mu.Unlock()
}

// finish delivers the end of playback of h. Reports for audio that is not
// assigned or not playing are dropped; with several browsers only the
// first report counts.
func (p *Player) finish(h resource.Handle, kind chatsession.PlayerEventKind, err error) {
	p.mu.Lock()
	if h.IsZero() || h != p.assigned || !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	fns := slices.Clone(p.fns)
	p.mu.Unlock()
	ev := chatsession.PlayerEvent{Handle: h, Kind: kind, Err: err}
	for _, fn := range fns {
		fn(ev)
	}
}
