// Package frame defines the captured pixel buffer that flows through the pipeline.
package frame

import (
	"image"
	"image/draw"
	"time"
)

// Format identifies the pixel layout of a Frame.
type Format int

const (
	// FormatRGBA is 8-bit non-premultiplied RGBA, 4 bytes per pixel.
	FormatRGBA Format = iota
)

func (f Format) String() string {
	switch f {
	case FormatRGBA:
		return "rgba"
	default:
		return "unknown"
	}
}

// Frame is one captured image plus its capture timestamp.
// A Frame is never mutated after capture; Clone and Crop return independent copies.
type Frame struct {
	img        *image.RGBA
	format     Format
	capturedAt time.Time
}

// New wraps img, taking ownership of it. The caller must not modify img afterwards.
// Images whose bounds do not start at the origin are rebased.
func New(img *image.RGBA, capturedAt time.Time) *Frame {
	if img != nil && img.Bounds().Min != (image.Point{}) {
		img = rebase(img, img.Bounds())
	}
	return &Frame{img: img, format: FormatRGBA, capturedAt: capturedAt}
}

// FromImage converts any image into a Frame by copying its pixels.
func FromImage(src image.Image, capturedAt time.Time) *Frame {
	if rgba, ok := src.(*image.RGBA); ok {
		return New(rebase(rgba, rgba.Bounds()), capturedAt)
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return New(dst, capturedAt)
}

// Image returns the underlying pixels. Callers treat it as read-only.
func (f *Frame) Image() *image.RGBA { return f.img }

// Format returns the pixel layout.
func (f *Frame) Format() Format { return f.format }

// CapturedAt returns when the frame was captured.
func (f *Frame) CapturedAt() time.Time { return f.capturedAt }

// Bounds returns the frame rectangle, always anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	if f == nil || f.img == nil {
		return image.Rectangle{}
	}
	return f.img.Bounds()
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Bounds().Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Bounds().Dy() }

// Empty reports whether the frame holds no pixels (nil, zero-sized or released).
func (f *Frame) Empty() bool { return f.Bounds().Empty() }

// RGB returns the colour channels at (x, y). Out-of-bounds reads return black.
func (f *Frame) RGB(x, y int) (r, g, b uint8) {
	if !(image.Point{X: x, Y: y}).In(f.Bounds()) {
		return 0, 0, 0
	}
	i := f.img.PixOffset(x, y)
	p := f.img.Pix[i : i+3 : i+3]
	return p[0], p[1], p[2]
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	if f.Empty() {
		return &Frame{format: f.format, capturedAt: f.capturedAt}
	}
	return &Frame{img: rebase(f.img, f.img.Bounds()), format: f.format, capturedAt: f.capturedAt}
}

// Crop returns a deep copy of the pixels inside r, rebased to the origin.
// r is clipped to the frame; an empty intersection yields an empty Frame.
func (f *Frame) Crop(r image.Rectangle) *Frame {
	r = r.Intersect(f.Bounds())
	if r.Empty() {
		return &Frame{format: f.format, capturedAt: f.capturedAt}
	}
	return &Frame{img: rebase(f.img, r), format: f.format, capturedAt: f.capturedAt}
}

// Release drops the pixel buffer. Subsequent reads see an empty frame.
func (f *Frame) Release() {
	if f != nil {
		f.img = nil
	}
}

func rebase(src *image.RGBA, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	rowLen := r.Dx() * 4
	for y := 0; y < r.Dy(); y++ {
		si := src.PixOffset(r.Min.X, r.Min.Y+y)
		di := dst.PixOffset(0, y)
		copy(dst.Pix[di:di+rowLen], src.Pix[si:si+rowLen])
	}
	return dst
}
