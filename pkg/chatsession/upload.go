package chatsession

import (
	"context"
	"fmt"
	"sync"

	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/chatlog"
	"github.com/haivivi/robocare/pkg/resource"
)

// ImageFallback is the reply shown when image analysis fails.
const ImageFallback = "Sorry, I couldn't process that image."

// Uploads submits images for analysis. It owns the preview resources it
// creates until Close.
type Uploads struct {
	factory resource.Factory
	log     *chatlog.Log
	state   *State
	backend backend.Backend
	logger  Logger

	mu       sync.Mutex
	previews []resource.Handle
}

// SubmitImage shows img in the log and appends the analysis, or the
// fallback text on failure. No placeholder is used.
func (u *Uploads) SubmitImage(ctx context.Context, img backend.Image) error {
	if len(img.Data) == 0 {
		return ErrEmptyImage
	}
	if !u.state.tryAcquire() {
		return ErrBusy
	}
	defer u.state.release()

	h, err := u.factory.Create(ctx, img.Data, img.MIMEType)
	if err != nil {
		return fmt.Errorf("chatsession: create preview: %w", err)
	}
	u.mu.Lock()
	u.previews = append(u.previews, h)
	u.mu.Unlock()

	u.log.Append(chatlog.SenderUser, chatlog.Image{Preview: h, MIME: img.MIMEType, Name: img.Filename})
	u.state.setLoading(true)
	defer u.state.setLoading(false)

	analysis, err := u.backend.AnalyzeImage(ctx, img)
	if err != nil {
		u.logger.WarnPrintf("analyze image %q: %v", img.Filename, err)
		u.log.Append(chatlog.SenderBot, chatlog.Text(ImageFallback))
		return nil
	}
	u.log.Append(chatlog.SenderBot, chatlog.Text(analysis))
	return nil
}

// Close releases every preview.
func (u *Uploads) Close(ctx context.Context) {
	u.mu.Lock()
	previews := u.previews
	u.previews = nil
	u.mu.Unlock()
	for _, h := range previews {
		if err := u.factory.Release(ctx, h); err != nil {
			u.logger.WarnPrintf("release preview %s: %v", h, err)
		}
	}
}
