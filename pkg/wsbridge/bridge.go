// Package wsbridge exposes a chat session to browsers over a websocket.
//
// A client connects to /ws and receives a snapshot of the session state
// and messages on connect and after every change. It drives the session
// by sending actions. Audio replies and image previews are served from
// /resources/{id}. With AttachPlayer the browsers also play the session
// audio: they receive player frames and report ended or failed.
package wsbridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/chatsession"
	"github.com/haivivi/robocare/pkg/resource"
)

const (
	writeTimeout = 5 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second

	// Images arrive base64 encoded inside a JSON frame.
	maxFrameBytes = 16 << 20
)

// Bridge is an http.Handler serving one session.
type Bridge struct {
	session   *chatsession.Session
	resources resource.Factory
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	mux       *http.ServeMux

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*client]struct{}
	player  *Player
	actions sync.WaitGroup
}

// New creates a bridge for s. A nil factory uses the session's resources;
// a nil logger uses slog.Default.
func New(s *chatsession.Session, factory resource.Factory, logger *slog.Logger) *Bridge {
	if factory == nil {
		factory = s.Resources()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		session:   s,
		resources: factory,
		logger:    logger.With("session", s.ID()),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		mux:     http.NewServeMux(),
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*client]struct{}),
	}
	b.mux.HandleFunc("GET /ws", b.handleWS)
	b.mux.HandleFunc("GET /resources/{id}", b.handleResource)
	s.OnNotice(chatsession.NotifierFunc(b.broadcastNotice))
	return b
}

// AttachPlayer makes connected browsers the output of p. p should be the
// Player the session was created with.
func (b *Bridge) AttachPlayer(p *Player) {
	b.mu.Lock()
	b.player = p
	b.mu.Unlock()
	p.attach(b.broadcastPlayer)
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// Close disconnects every client, cancels running actions and waits for
// them to return. The session itself is left open.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.cancel()
	for c := range b.clients {
		c.conn.Close()
	}
	player := b.player
	b.mu.Unlock()
	if player != nil {
		player.attach(nil)
	}
	b.actions.Wait()
	return nil
}

func (b *Bridge) startAction() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil {
		return false
	}
	b.actions.Add(1)
	return true
}

// Clients returns the number of connected clients.
func (b *Bridge) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Bridge) handleResource(w http.ResponseWriter, r *http.Request) {
	h := resource.Handle(r.PathValue("id"))
	info, err := b.resources.Stat(h)
	if err != nil {
		http.Error(w, "resource not found", http.StatusNotFound)
		return
	}
	rc, err := b.resources.Open(r.Context(), h)
	if err != nil {
		http.Error(w, "resource not found", http.StatusNotFound)
		return
	}
	defer rc.Close()

	if info.MIME != "" {
		w.Header().Set("Content-Type", info.MIME)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.Copy(w, rc); err != nil {
		b.logger.Debug("stream resource", "handle", h, "error", err)
	}
}

type client struct {
	conn *websocket.Conn
	out  chan any
}

// push queues a frame without blocking. Frames are dropped when the
// client cannot keep up.
func (c *client) push(f any) bool {
	select {
	case c.out <- f:
		return true
	default:
		return false
	}
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	if b.ctx.Err() != nil {
		http.Error(w, "bridge closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	c := &client{conn: conn, out: make(chan any, 32)}
	changes, unsubscribe := b.session.Subscribe()
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	b.logger.Info("ws client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(b.ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := b.writeLoop(ctx, c, changes); err != nil {
			b.logger.Debug("ws write", "error", err)
		}
		// Unblock the reader when the writer gives up.
		conn.Close()
	}()

	b.readLoop(c)

	cancel()
	<-done
	unsubscribe()
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	conn.Close()
	b.logger.Info("ws client disconnected", "remote", r.RemoteAddr)
}

func (b *Bridge) readLoop(c *client) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		var a Action
		if err := c.conn.ReadJSON(&a); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				b.logger.Debug("ws read", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		if !b.startAction() {
			return
		}
		go func() {
			defer b.actions.Done()
			if err := b.dispatch(b.ctx, a); err != nil {
				b.logger.Debug("ws action failed", "action", a.Type, "error", err)
				c.push(ErrorFrame{Type: "error", Action: a.Type, Error: err.Error()})
			}
		}()
	}
}

func (b *Bridge) writeLoop(ctx context.Context, c *client, changes <-chan struct{}) error {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	if err := b.write(c, b.snapshot()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return nil
		case <-changes:
			if err := b.write(c, b.snapshot()); err != nil {
				return err
			}
		case f := <-c.out:
			if err := b.write(c, f); err != nil {
				return err
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) write(c *client, f any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(f)
}

func (b *Bridge) snapshot() Snapshot {
	return Snapshot{
		Type:     "snapshot",
		State:    b.session.State(),
		Messages: encodeMessages(b.session.Messages()),
	}
}

func (b *Bridge) broadcastNotice(n chatsession.Notice) {
	f := NoticeFrame{Type: "notice", Kind: n.Kind.String(), Message: n.Message}
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if !c.push(f) {
			b.logger.Warn("ws notice dropped")
		}
	}
}

// broadcastPlayer pushes f to every client and returns how many took it.
func (b *Bridge) broadcastPlayer(f PlayerFrame) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for c := range b.clients {
		if c.push(f) {
			n++
		}
	}
	return n
}

func (b *Bridge) dispatch(ctx context.Context, a Action) error {
	s := b.session
	switch a.Type {
	case ActionText:
		return s.Submit(ctx, a.Text)
	case ActionSend:
		return s.SubmitTranscript(ctx)
	case ActionImage:
		data, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return fmt.Errorf("decode image: %w", err)
		}
		return s.SubmitImage(ctx, backend.Image{Data: data, MIMEType: a.MIME, Filename: a.Filename})
	case ActionMic:
		return s.ToggleMic(ctx)
	case ActionLanguage:
		return s.SelectLanguage(ctx, a.Name)
	case ActionAudio:
		return s.ToggleAudio(ctx, resource.Handle(a.Handle))
	case ActionEnded, ActionFailed:
		b.mu.Lock()
		player := b.player
		b.mu.Unlock()
		if player == nil {
			return errors.New("playback is not reported by browsers")
		}
		if a.Type == ActionEnded {
			player.finish(resource.Handle(a.Handle), chatsession.PlayerEnded, nil)
			return nil
		}
		var err error
		if a.Error != "" {
			err = errors.New(a.Error)
		}
		player.finish(resource.Handle(a.Handle), chatsession.PlayerFailed, err)
		return nil
	case ActionProfile:
		if a.Profile == nil {
			return errors.New("profile is required")
		}
		return s.SubmitProfile(ctx, *a.Profile)
	default:
		return fmt.Errorf("unknown action %q", a.Type)
	}
}
