package frame

import (
	"image"
	"image/color"
	"testing"
	"time"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCloneIsIndependent(t *testing.T) {
	f := New(solid(4, 4, color.RGBA{10, 20, 30, 255}), time.Unix(1, 0))
	c := f.Clone()

	c.Image().SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})

	if r, _, _ := f.RGB(0, 0); r != 10 {
		t.Errorf("original mutated through clone: r = %d", r)
	}
	if !c.CapturedAt().Equal(f.CapturedAt()) {
		t.Error("clone should keep the capture timestamp")
	}
}

func TestCropRebasesAndClips(t *testing.T) {
	img := solid(10, 10, color.RGBA{0, 0, 0, 255})
	img.SetRGBA(5, 6, color.RGBA{200, 100, 50, 255})
	f := New(img, time.Now())

	c := f.Crop(image.Rect(5, 6, 20, 20))
	if c.Bounds() != image.Rect(0, 0, 5, 4) {
		t.Fatalf("crop bounds = %v, want (0,0)-(5,4)", c.Bounds())
	}
	if r, g, b := c.RGB(0, 0); r != 200 || g != 100 || b != 50 {
		t.Errorf("crop origin = (%d,%d,%d), want (200,100,50)", r, g, b)
	}

	if !f.Crop(image.Rect(50, 50, 60, 60)).Empty() {
		t.Error("crop outside the frame should be empty")
	}
}

func TestNewRebasesOffsetImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(3, 3, 6, 6))
	f := New(img, time.Now())
	if f.Bounds().Min != (image.Point{}) {
		t.Errorf("bounds min = %v, want origin", f.Bounds().Min)
	}
}

func TestRelease(t *testing.T) {
	f := New(solid(2, 2, color.RGBA{1, 1, 1, 255}), time.Now())
	f.Release()
	if !f.Empty() {
		t.Error("released frame should be empty")
	}
	if r, _, _ := f.RGB(0, 0); r != 0 {
		t.Error("released frame should read as black")
	}
}

func TestContentScore(t *testing.T) {
	black := New(solid(64, 64, color.RGBA{0, 0, 0, 255}), time.Now())
	s := ContentScore(black, 8)
	if s.Samples != 64 || s.Mean != 0 || s.Variance != 0 {
		t.Errorf("black score = %+v", s)
	}

	img := solid(64, 64, color.RGBA{0, 0, 0, 255})
	for y := 0; y < 64; y++ {
		for x := 32; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	split := ContentScore(New(img, time.Now()), 8)
	if split.Mean < 100 || split.Variance < 1000 {
		t.Errorf("half white score too low: %+v", split)
	}

	if got := ContentScore(&Frame{}, 8); got.Samples != 0 {
		t.Errorf("empty frame score = %+v", got)
	}
}

func TestFromImage(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	gray.SetGray(1, 1, color.Gray{Y: 128})
	f := FromImage(gray, time.Now())
	if f.Width() != 3 || f.Height() != 2 {
		t.Fatalf("size = %dx%d", f.Width(), f.Height())
	}
	if r, _, _ := f.RGB(1, 1); r != 128 {
		t.Errorf("r = %d, want 128", r)
	}
}
