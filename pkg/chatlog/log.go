package chatlog

import (
	"errors"
	"slices"
	"sync"
	"time"
)

var (
	// ErrPendingExists is returned by AppendPending while a placeholder is
	// already in the log.
	ErrPendingExists = errors.New("chatlog: pending message already exists")

	// ErrNoPending is returned by ResolvePending for a nil, stale or
	// already resolved handle.
	ErrNoPending = errors.New("chatlog: no such pending message")

	ErrNilContent = errors.New("chatlog: nil content")
)

// Pending identifies the placeholder created by AppendPending.
type Pending struct {
	id     ID
	sender Sender
}

// ID returns the id of the placeholder message.
func (p *Pending) ID() ID {
	return p.id
}

// Log is a concurrency-safe conversation log.
type Log struct {
	mu      sync.Mutex
	msgs    []Message
	nextID  ID
	pending *Pending
	hooks   []func()

	now func() time.Time
}

// New returns an empty log.
func New() *Log {
	return &Log{nextID: 1, now: time.Now}
}

// OnChange registers fn to be called after every mutation. Hooks run on
// the mutating goroutine after the log lock is released, so they may read
// the log.
func (l *Log) OnChange(fn func()) {
	l.mu.Lock()
	l.hooks = append(l.hooks, fn)
	l.mu.Unlock()
}

func (l *Log) notify(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}

// appendLocked must be called with l.mu held.
func (l *Log) appendLocked(m Message) Message {
	m.ID = l.nextID
	l.nextID++
	m.CreatedAt = l.now()
	l.msgs = append(l.msgs, m)
	return m
}

// Append adds a terminal message and returns its id.
func (l *Log) Append(sender Sender, c Content, opts ...Option) (ID, error) {
	if c == nil {
		return 0, ErrNilContent
	}
	m := Message{Sender: sender, Content: c}
	for _, opt := range opts {
		opt(&m)
	}
	l.mu.Lock()
	m = l.appendLocked(m)
	hooks := l.hooks
	l.mu.Unlock()
	l.notify(hooks)
	return m.ID, nil
}

// AppendPending adds the placeholder message for sender.
func (l *Log) AppendPending(sender Sender) (*Pending, error) {
	l.mu.Lock()
	if l.pending != nil {
		l.mu.Unlock()
		return nil, ErrPendingExists
	}
	m := l.appendLocked(Message{Sender: sender, Content: Text(PlaceholderText), Pending: true})
	p := &Pending{id: m.ID, sender: sender}
	l.pending = p
	hooks := l.hooks
	l.mu.Unlock()
	l.notify(hooks)
	return p, nil
}

// ResolvePending removes the placeholder identified by p and appends a
// terminal message built from r, authored by the placeholder's sender.
func (l *Log) ResolvePending(p *Pending, r Result) (Message, error) {
	if r.Content == nil {
		return Message{}, ErrNilContent
	}
	l.mu.Lock()
	if p == nil || l.pending != p {
		l.mu.Unlock()
		return Message{}, ErrNoPending
	}
	l.msgs = slices.DeleteFunc(l.msgs, func(m Message) bool { return m.ID == p.id })
	l.pending = nil
	m := l.appendLocked(Message{
		Sender:   p.sender,
		Content:  r.Content,
		Language: r.Language,
		Audio:    r.Audio,
	})
	hooks := l.hooks
	l.mu.Unlock()
	l.notify(hooks)
	return m, nil
}

// HasPending reports whether a placeholder is in the log.
func (l *Log) HasPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending != nil
}

// Snapshot returns a copy of the messages in order.
func (l *Log) Snapshot() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.msgs)
}

// Get returns the message with the given id.
func (l *Log) Get(id ID) (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Len returns the number of messages including any placeholder.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}
