// Package ocr turns a cropped dialogue region into text through a pluggable
// recognition backend.
package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"time"

	"github.com/nfnt/resize"

	apperrors "github.com/gamewatcher/watcher/internal/errors"
)

// Result is the raw recognition output.
type Result struct {
	Text       string
	Confidence float64 // 0-1; 0 when the backend does not report one
}

// Extractor recognizes text in an image.
type Extractor interface {
	ExtractText(ctx context.Context, img image.Image) (Result, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, img image.Image) (Result, error)

// ExtractText calls f.
func (f ExtractorFunc) ExtractText(ctx context.Context, img image.Image) (Result, error) {
	return f(ctx, img)
}

// Config selects and tunes the OCR backend.
type Config struct {
	Backend  string        `yaml:"backend"` // grpc or tesseract
	Addr     string        `yaml:"addr"`
	Timeout  time.Duration `yaml:"timeout"` // per call; 0 disables
	Scale    float64       `yaml:"scale"`   // upscale factor applied before recognition
	Language string        `yaml:"language"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Backend:  "grpc",
		Addr:     "localhost:50051",
		Scale:    2,
		Language: "eng",
	}
}

// Prepare upscales img by scale with nearest-neighbour sampling, which keeps
// bitmap font edges sharp.
func Prepare(img image.Image, scale float64) image.Image {
	if scale <= 1 {
		return img
	}
	w := uint(float64(img.Bounds().Dx()) * scale)
	return resize.Resize(w, 0, img, resize.NearestNeighbor)
}

// EncodePNG serializes img for transport.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeOCRFailed, "encode png")
	}
	return buf.Bytes(), nil
}

// WithTimeout bounds every call to e by d. A zero d returns e unchanged.
func WithTimeout(e Extractor, d time.Duration) Extractor {
	if d <= 0 {
		return e
	}
	return ExtractorFunc(func(ctx context.Context, img image.Image) (Result, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return e.ExtractText(ctx, img)
	})
}
