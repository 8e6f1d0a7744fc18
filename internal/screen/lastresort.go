package screen

import (
	"context"
	"image"
	"time"

	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/frame"
)

// Recapture runs one ungated pass over the backend chain.
type Recapture func(ctx context.Context) (*frame.Frame, error)

// Strategy is a last-resort capture workaround. Its frame is validated by the
// chain with the same Usable predicate as regular backends.
type Strategy struct {
	Name    string
	Attempt func(ctx context.Context, h Handle, recapture Recapture) (*frame.Frame, error)
}

// Desktop exposes the OS hooks the last-resort strategies need.
type Desktop interface {
	// Activate restores the window and brings it to the foreground.
	Activate(h Handle) error
	// Nudge sends a harmless input event to wake a suspended renderer.
	Nudge(h Handle) error
	// SnapshotToClipboard asks the OS to copy the window to the clipboard and
	// returns the resulting bitmap.
	SnapshotToClipboard(ctx context.Context, h Handle) (image.Image, error)
}

// LastResort returns the ordered strategy list: forced activation, synthetic
// input, clipboard snapshot.
func LastResort(d Desktop) []Strategy {
	if d == nil {
		return nil
	}
	return []Strategy{
		{
			Name: "force-activate",
			Attempt: func(ctx context.Context, h Handle, recapture Recapture) (*frame.Frame, error) {
				if err := d.Activate(h); err != nil {
					return nil, err
				}
				return recapture(ctx)
			},
		},
		{
			Name: "synthetic-input",
			Attempt: func(ctx context.Context, h Handle, recapture Recapture) (*frame.Frame, error) {
				if err := d.Nudge(h); err != nil {
					return nil, err
				}
				return recapture(ctx)
			},
		},
		{
			Name: "clipboard-snapshot",
			Attempt: func(ctx context.Context, h Handle, _ Recapture) (*frame.Frame, error) {
				img, err := d.SnapshotToClipboard(ctx, h)
				if err != nil {
					return nil, err
				}
				return frame.FromImage(img, time.Now()), nil
			},
		},
	}
}

func runStrategy(ctx context.Context, s Strategy, h Handle, recapture Recapture) (f *frame.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			f = nil
			err = apperrors.Newf(apperrors.CodeBackendFault, "strategy %s panicked: %v", s.Name, r)
		}
	}()
	f, err = s.Attempt(ctx, h, recapture)
	if err == nil && f == nil {
		err = apperrors.Newf(apperrors.CodeCaptureUnavailable, "strategy %s returned no frame", s.Name)
	}
	return f, err
}
