package chatsession

import (
	"context"
	"fmt"
	"sync"

	"github.com/haivivi/robocare/pkg/resource"
)

// Playback owns the single active reply-audio resource.
type Playback struct {
	mu       sync.Mutex
	factory  resource.Factory
	player   Player
	state    *State
	log      Logger
	active   resource.Handle
	assigned resource.Handle
	playing  bool
}

func newPlayback(factory resource.Factory, player Player, state *State, log Logger) *Playback {
	p := &Playback{factory: factory, player: player, state: state, log: log}
	player.Listen(p.onEvent)
	return p
}

func (p *Playback) onEvent(ev PlayerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.Handle != p.active || !p.playing {
		return
	}
	if ev.Kind == PlayerFailed {
		p.log.WarnPrintf("playback of %s failed: %v", ev.Handle, ev.Err)
	}
	p.playing = false
	p.state.setSpeaking(false)
}

// Load replaces the active resource with a new one holding audio.
func (p *Playback) Load(ctx context.Context, audio []byte, mime string) (resource.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropActiveLocked(ctx)
	h, err := p.factory.Create(ctx, audio, mime)
	if err != nil {
		return "", fmt.Errorf("chatsession: load audio: %w", err)
	}
	p.active = h
	p.state.setActiveAudio(h)
	return h, nil
}

// Play makes h active and starts it.
func (p *Playback) Play(ctx context.Context, h resource.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.liveLocked(h) {
		return ErrNotLoaded
	}
	return p.playLocked(ctx, h)
}

// Toggle pauses h when it is active and playing, and plays it otherwise.
// Handles not created by Load, or already released, yield ErrNotLoaded
// without a state change.
func (p *Playback) Toggle(ctx context.Context, h resource.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.liveLocked(h) {
		return ErrNotLoaded
	}
	if p.playing {
		return p.pauseLocked(ctx)
	}
	return p.playLocked(ctx, h)
}

// Release frees h if it is the active resource. Any other handle belongs
// to someone else and yields ErrNotLoaded.
func (p *Playback) Release(ctx context.Context, h resource.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.liveLocked(h) {
		return ErrNotLoaded
	}
	p.dropActiveLocked(ctx)
	return nil
}

// Close pauses and releases the active resource.
func (p *Playback) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropActiveLocked(ctx)
}

// Active returns the active handle.
func (p *Playback) Active() resource.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// liveLocked reports whether h is the handle Load created last and it
// has not been released.
func (p *Playback) liveLocked(h resource.Handle) bool {
	if h.IsZero() || h != p.active {
		return false
	}
	_, err := p.factory.Stat(h)
	return err == nil
}

func (p *Playback) playLocked(ctx context.Context, h resource.Handle) error {
	if p.assigned != h {
		if err := p.player.Assign(h); err != nil {
			return fmt.Errorf("chatsession: assign audio: %w", err)
		}
		p.assigned = h
	}
	if err := p.player.Play(ctx); err != nil {
		return fmt.Errorf("chatsession: play audio: %w", err)
	}
	p.playing = true
	p.state.setSpeaking(true)
	return nil
}

func (p *Playback) pauseLocked(ctx context.Context) error {
	err := p.player.Pause(ctx)
	p.playing = false
	p.state.setSpeaking(false)
	if err != nil {
		return fmt.Errorf("chatsession: pause audio: %w", err)
	}
	return nil
}

// dropActiveLocked stops and releases the active resource, if any.
func (p *Playback) dropActiveLocked(ctx context.Context) {
	if p.active.IsZero() {
		return
	}
	if p.playing {
		if err := p.pauseLocked(ctx); err != nil {
			p.log.WarnPrintf("%v", err)
		}
	}
	if p.assigned == p.active {
		if err := p.player.Assign(""); err != nil {
			p.log.WarnPrintf("detach audio: %v", err)
		}
		p.assigned = ""
	}
	if err := p.factory.Release(ctx, p.active); err != nil {
		p.log.WarnPrintf("release audio %s: %v", p.active, err)
	}
	p.active = ""
	p.state.setActiveAudio("")
}
