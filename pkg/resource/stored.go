package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"

	"github.com/google/uuid"

	"github.com/haivivi/robocare/pkg/storage"
)

// Stored keeps resource bytes in a blob store (local disk or S3), so long
// sessions do not hold every reply in memory. Only the handle table lives
// in process.
type Stored struct {
	store  storage.Store
	prefix string

	mu   sync.Mutex
	live map[Handle]Info
}

var _ Factory = (*Stored)(nil)

// NewStored returns a factory writing blobs named prefix/<uuid>.
func NewStored(store storage.Store, prefix string) *Stored {
	return &Stored{store: store, prefix: prefix, live: make(map[Handle]Info)}
}

func (s *Stored) name(h Handle) string {
	if s.prefix == "" {
		return string(h)
	}
	return path.Join(s.prefix, string(h))
}

func (s *Stored) Create(ctx context.Context, data []byte, mime string) (Handle, error) {
	if len(data) == 0 {
		return "", errors.New("resource: empty data")
	}
	h := Handle(uuid.NewString())
	err := s.store.Put(ctx, storage.Object{
		Name:        s.name(h),
		ContentType: mime,
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("resource: create: %w", err)
	}
	s.mu.Lock()
	s.live[h] = Info{MIME: mime, Size: int64(len(data))}
	s.mu.Unlock()
	return h, nil
}

func (s *Stored) Open(ctx context.Context, h Handle) (io.ReadCloser, error) {
	if _, err := s.Stat(h); err != nil {
		return nil, err
	}
	rc, err := s.store.Open(ctx, s.name(h))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrReleased
	}
	return rc, err
}

func (s *Stored) Stat(h Handle) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.live[h]
	if !ok {
		return Info{}, ErrReleased
	}
	return info, nil
}

// Release forgets h and deletes its blob. The handle is gone even if the
// blob delete fails; the error is still returned.
func (s *Stored) Release(ctx context.Context, h Handle) error {
	s.mu.Lock()
	_, ok := s.live[h]
	delete(s.live, h)
	s.mu.Unlock()
	if !ok {
		return ErrReleased
	}
	if err := s.store.Delete(ctx, s.name(h)); err != nil {
		return fmt.Errorf("resource: release: %w", err)
	}
	return nil
}

func (s *Stored) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}
