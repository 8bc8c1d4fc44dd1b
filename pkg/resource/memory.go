package resource

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Memory keeps resource bytes in process memory.
type Memory struct {
	mu    sync.Mutex
	items map[Handle]memItem
}

type memItem struct {
	data []byte
	mime string
}

var _ Factory = (*Memory)(nil)

// NewMemory returns an empty in-memory factory.
func NewMemory() *Memory {
	return &Memory{items: make(map[Handle]memItem)}
}

func (m *Memory) Create(ctx context.Context, data []byte, mime string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("resource: empty data")
	}
	h := Handle(uuid.NewString())
	m.mu.Lock()
	m.items[h] = memItem{data: bytes.Clone(data), mime: mime}
	m.mu.Unlock()
	return h, nil
}

func (m *Memory) Open(_ context.Context, h Handle) (io.ReadCloser, error) {
	m.mu.Lock()
	it, ok := m.items[h]
	m.mu.Unlock()
	if !ok {
		return nil, ErrReleased
	}
	return io.NopCloser(bytes.NewReader(it.data)), nil
}

func (m *Memory) Stat(h Handle) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[h]
	if !ok {
		return Info{}, ErrReleased
	}
	return Info{MIME: it.mime, Size: int64(len(it.data))}, nil
}

func (m *Memory) Release(_ context.Context, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[h]; !ok {
		return ErrReleased
	}
	delete(m.items, h)
	return nil
}

func (m *Memory) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
