package chatsession

import "sync"

// NoticeKind classifies a blocking notice.
type NoticeKind int

const (
	NoticeUnsupported NoticeKind = iota
	NoticeAccessDenied
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeUnsupported:
		return "unsupported"
	case NoticeAccessDenied:
		return "access_denied"
	default:
		return "unknown"
	}
}

const (
	unsupportedText  = "Speech recognition is not supported here. Please type your message instead."
	accessDeniedText = "Please allow microphone access to use speech recognition."
)

// Notice is a message the user must acknowledge.
type Notice struct {
	Kind    NoticeKind
	Message string
}

func newNotice(k NoticeKind) Notice {
	switch k {
	case NoticeUnsupported:
		return Notice{Kind: k, Message: unsupportedText}
	default:
		return Notice{Kind: k, Message: accessDeniedText}
	}
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// notifiers fans a notice out to every registered Notifier.
type notifiers struct {
	mu   sync.Mutex
	list []Notifier
}

func (ns *notifiers) add(n Notifier) {
	if n == nil {
		return
	}
	ns.mu.Lock()
	ns.list = append(ns.list, n)
	ns.mu.Unlock()
}

func (ns *notifiers) Notify(n Notice) {
	ns.mu.Lock()
	list := append([]Notifier(nil), ns.list...)
	ns.mu.Unlock()
	for _, to := range list {
		to.Notify(n)
	}
}
