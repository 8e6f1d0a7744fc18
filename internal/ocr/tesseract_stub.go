//go:build !tesseract

package ocr

import (
	"context"
	"image"

	apperrors "github.com/gamewatcher/watcher/internal/errors"
)

// Tesseract is unavailable in builds without the tesseract tag.
type Tesseract struct{}

// NewTesseract reports that the local engine was not compiled in.
func NewTesseract(Config) (*Tesseract, error) {
	return nil, apperrors.New(apperrors.CodeUnsupported, "built without tesseract support (rebuild with -tags tesseract)")
}

// ExtractText always fails.
func (*Tesseract) ExtractText(context.Context, image.Image) (Result, error) {
	return Result{}, apperrors.New(apperrors.CodeUnsupported, "tesseract not available")
}

// Close is a no-op.
func (*Tesseract) Close() error { return nil }
