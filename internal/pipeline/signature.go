package pipeline

import (
	"github.com/corona10/goimagehash"

	"github.com/gamewatcher/watcher/internal/frame"
	"github.com/gamewatcher/watcher/internal/gate"
)

// signature identifies the content of a region crop. The dHash rules out
// different crops cheaply; crops whose hashes agree are compared pixel by pixel,
// since a 9x8 hash of a dialogue box barely moves when only its text changes.
type signature struct {
	hash *goimagehash.ImageHash
	pix  *frame.Frame
}

// newSignature shares the crop's pixels. Frames are immutable, so releasing the
// crop after OCR leaves them readable here.
func newSignature(crop *frame.Frame) (*signature, error) {
	hash, err := goimagehash.DifferenceHash(crop.Image())
	if err != nil {
		return nil, err
	}
	return &signature{hash: hash, pix: frame.New(crop.Image(), crop.CapturedAt())}, nil
}

// matches reports whether s and o show the same content: hashes within
// maxDistance and every pixel within tolerance. A negative maxDistance never
// matches.
func (s *signature) matches(o *signature, maxDistance, tolerance int) bool {
	if s == nil || o == nil || maxDistance < 0 {
		return false
	}
	dist, err := s.hash.Distance(o.hash)
	if err != nil || dist > maxDistance {
		return false
	}
	return gate.Similarity(s.pix, o.pix, 1, tolerance) == 1
}
