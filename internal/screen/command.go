//go:build !windows

package screen

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/frame"
)

// commandBackend shells out to the desktop screenshot tool: screencapture on
// macOS, gnome-screenshot or scrot elsewhere.
type commandBackend struct {
	tempDir string
}

func newCommandBackend() (*commandBackend, error) {
	if _, _, err := screenshotCommand("", 0); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "watcher-capture-*")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendFault, "create capture temp dir")
	}
	return &commandBackend{tempDir: dir}, nil
}

func (c *commandBackend) Kind() Kind { return KindBlit }

func (c *commandBackend) Close() error {
	if c.tempDir == "" {
		return nil
	}
	return os.RemoveAll(c.tempDir)
}

func (c *commandBackend) Capture(ctx context.Context, h Handle) (*frame.Frame, error) {
	out := filepath.Join(c.tempDir, "frame.png")
	name, args, err := screenshotCommand(out, h)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Debug("screenshot command failed", "command", name, "stderr", stderr.String())
		return nil, apperrors.Wrapf(err, apperrors.CodeBackendFault, "%s", name)
	}
	defer os.Remove(out)

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendFault, "read screenshot")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBackendFault, "decode screenshot")
	}
	return frame.FromImage(cropToDisplay(img, h), time.Now()), nil
}

// cropToDisplay narrows a whole-desktop screenshot to the display h. macOS
// captures a single display already.
func cropToDisplay(img image.Image, h Handle) image.Image {
	if runtime.GOOS == "darwin" {
		return img
	}
	bounds, err := displayBounds(h)
	if err != nil {
		return img
	}
	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return img
	}
	r := bounds.Sub(desktopOrigin()).Intersect(img.Bounds())
	if r.Empty() {
		return img
	}
	return sub.SubImage(r)
}

func desktopOrigin() image.Point {
	var origin image.Point
	for i := 0; ; i++ {
		b, err := displayBounds(Handle(i))
		if err != nil {
			return origin
		}
		if i == 0 || b.Min.X < origin.X {
			origin.X = b.Min.X
		}
		if i == 0 || b.Min.Y < origin.Y {
			origin.Y = b.Min.Y
		}
	}
}

func screenshotCommand(out string, h Handle) (string, []string, error) {
	if runtime.GOOS == "darwin" {
		// -x: no sound, -D: 1-based display number
		return "screencapture", []string{"-x", "-t", "png", "-D", strconv.Itoa(int(h) + 1), out}, nil
	}
	if _, err := exec.LookPath("gnome-screenshot"); err == nil {
		return "gnome-screenshot", []string{"-f", out}, nil
	}
	if _, err := exec.LookPath("scrot"); err == nil {
		return "scrot", []string{"-o", out}, nil
	}
	return "", nil, apperrors.New(apperrors.CodeUnsupported, "no screenshot tool found (install gnome-screenshot or scrot)")
}
