//go:build !windows

package screen

import (
	"context"
	"image"
	"time"

	"github.com/kbinani/screenshot"

	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/frame"
)

// NewPlatform returns display capture through the native screenshot APIs and the
// desktop screenshot command. Handles name display indices; there is no
// compositor backend and no last-resort hooks.
func NewPlatform() Platform {
	return Platform{
		Factory: openBackend,
		Locator: displayLocator{},
	}
}

// FindWindow is only available on Windows.
func FindWindow(title string) (Handle, error) {
	return 0, apperrors.Newf(apperrors.CodeUnsupported, "window lookup by title %q requires windows", title)
}

func openBackend(kind Kind, h Handle) (Backend, error) {
	if int(h) >= screenshot.NumActiveDisplays() {
		return nil, apperrors.Newf(apperrors.CodeCaptureUnavailable, "display %d not active", h)
	}
	switch kind {
	case KindDuplication:
		return displayBackend{}, nil
	case KindBlit:
		return newCommandBackend()
	default:
		return nil, apperrors.Newf(apperrors.CodeUnsupported, "backend %s", kind)
	}
}

type displayLocator struct{}

func (displayLocator) WindowRect(h Handle) (image.Rectangle, error) {
	return displayBounds(h)
}

func (displayLocator) MonitorRect(h Handle) (image.Rectangle, error) {
	return displayBounds(h)
}

func displayBounds(h Handle) (image.Rectangle, error) {
	if int(h) >= screenshot.NumActiveDisplays() {
		return image.Rectangle{}, apperrors.Newf(apperrors.CodeCaptureUnavailable, "display %d not active", h)
	}
	return screenshot.GetDisplayBounds(int(h)), nil
}

// displayBackend reads the display surface directly.
type displayBackend struct{}

func (displayBackend) Kind() Kind { return KindDuplication }

func (displayBackend) Close() error { return nil }

func (displayBackend) Capture(ctx context.Context, h Handle) (*frame.Frame, error) {
	bounds, err := displayBounds(h)
	if err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendFault, "display capture")
	}
	return frame.New(img, time.Now()), nil
}
