//go:build tesseract

package ocr

import (
	"context"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/gamewatcher/watcher/internal/errors"
)

// Tesseract runs recognition in-process through libtesseract. Calls are
// serialized because the underlying client is not safe for concurrent use.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
	scale  float64
}

// NewTesseract creates a local engine for cfg.Language.
func NewTesseract(cfg Config) (*Tesseract, error) {
	client := gosseract.NewClient()
	if cfg.Language != "" {
		if err := client.SetLanguage(cfg.Language); err != nil {
			client.Close()
			return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "tesseract language")
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "tesseract page mode")
	}
	return &Tesseract{client: client, scale: cfg.Scale}, nil
}

// ExtractText recognizes img and reports the mean line confidence.
func (t *Tesseract) ExtractText(ctx context.Context, img image.Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CodeCancelled, "ocr cancelled")
	}
	data, err := EncodePNG(Prepare(img, t.scale))
	if err != nil {
		return Result{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(data); err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CodeOCRFailed, "tesseract image")
	}
	text, err := t.client.Text()
	if err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CodeOCRFailed, "tesseract text")
	}

	var conf float64
	if boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE); err == nil && len(boxes) > 0 {
		for _, b := range boxes {
			conf += b.Confidence
		}
		conf = conf / float64(len(boxes)) / 100
	}
	return Result{Text: text, Confidence: conf}, nil
}

// Close releases the engine.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
