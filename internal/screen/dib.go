package screen

import (
	"encoding/binary"
	"fmt"
	"image"
)

const (
	biRGB       = 0
	biBitfields = 3
)

// decodeDIB parses a packed device-independent bitmap (BITMAPINFOHEADER followed
// by pixels), as placed on the clipboard under CF_DIB. 24 and 32 bpp are supported.
func decodeDIB(b []byte) (*image.RGBA, error) {
	if len(b) < 40 {
		return nil, fmt.Errorf("dib: header truncated (%d bytes)", len(b))
	}
	le := binary.LittleEndian
	hdrSize := int(le.Uint32(b[0:]))
	width := int(int32(le.Uint32(b[4:])))
	height := int(int32(le.Uint32(b[8:])))
	bpp := int(le.Uint16(b[14:]))
	compression := le.Uint32(b[16:])
	clrUsed := int(le.Uint32(b[32:]))

	if width <= 0 || height == 0 {
		return nil, fmt.Errorf("dib: invalid dimensions %dx%d", width, height)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("dib: unsupported bit depth %d", bpp)
	}
	if compression != biRGB && compression != biBitfields {
		return nil, fmt.Errorf("dib: unsupported compression %d", compression)
	}

	offset := hdrSize + clrUsed*4
	if compression == biBitfields && hdrSize == 40 {
		offset += 12
	}

	topDown := height < 0
	if topDown {
		height = -height
	}
	stride := ((width*bpp + 31) / 32) * 4
	if need := offset + stride*height; len(b) < need {
		return nil, fmt.Errorf("dib: pixel data truncated (%d of %d bytes)", len(b), need)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	step := bpp / 8
	for y := 0; y < height; y++ {
		src := y
		if !topDown {
			src = height - 1 - y
		}
		row := b[offset+src*stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			p := row[x*step:]
			dst[x*4] = p[2]
			dst[x*4+1] = p[1]
			dst[x*4+2] = p[0]
			dst[x*4+3] = 0xff
		}
	}
	return img, nil
}

// bgraToRGBA converts a top-down 32 bpp GDI buffer. GDI leaves alpha undefined, so
// every pixel is made opaque.
func bgraToRGBA(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	n := min(len(buf), len(img.Pix))
	for i := 0; i+3 < n; i += 4 {
		img.Pix[i] = buf[i+2]
		img.Pix[i+1] = buf[i+1]
		img.Pix[i+2] = buf[i]
		img.Pix[i+3] = 0xff
	}
	return img
}
