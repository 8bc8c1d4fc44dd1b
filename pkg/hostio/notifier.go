package hostio

import (
	"fmt"
	"io"
	"sync"

	"github.com/haivivi/robocare/pkg/chatsession"
)

// PrintNotifier writes notices to W, one per line.
type PrintNotifier struct {
	mu sync.Mutex
	W  io.Writer

	// Format renders a notice. Nil prints "! <message>".
	Format func(chatsession.Notice) string
}

func (p *PrintNotifier) Notify(n chatsession.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := "! " + n.Message
	if p.Format != nil {
		line = p.Format(n)
	}
	fmt.Fprintln(p.W, line)
}
