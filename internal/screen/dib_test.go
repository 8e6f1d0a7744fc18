package screen

import (
	"encoding/binary"
	"testing"
)

func dib(width, height int32, bpp uint16, pixels []byte) []byte {
	b := make([]byte, 40)
	le := binary.LittleEndian
	le.PutUint32(b[0:], 40)
	le.PutUint32(b[4:], uint32(width))
	le.PutUint32(b[8:], uint32(height))
	le.PutUint16(b[12:], 1)
	le.PutUint16(b[14:], bpp)
	return append(b, pixels...)
}

func TestDecodeDIBBottomUp(t *testing.T) {
	// 2x2, 24bpp, rows padded to 8 bytes. Bottom row first.
	pixels := []byte{
		0, 0, 255, 0, 255, 0, 0, 0, // bottom: red, green
		255, 0, 0, 255, 255, 255, 0, 0, // top: blue, white
	}
	img, err := decodeDIB(dib(2, 2, 24, pixels))
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(0, 0); c.B != 255 || c.R != 0 {
		t.Errorf("top-left = %v, want blue", c)
	}
	if c := img.RGBAAt(0, 1); c.R != 255 || c.G != 0 {
		t.Errorf("bottom-left = %v, want red", c)
	}
	if c := img.RGBAAt(1, 0); c.R != 255 || c.G != 255 || c.B != 255 || c.A != 255 {
		t.Errorf("top-right = %v, want opaque white", c)
	}
}

func TestDecodeDIBTopDown32(t *testing.T) {
	pixels := []byte{10, 20, 30, 0}
	img, err := decodeDIB(dib(1, -1, 32, pixels))
	if err != nil {
		t.Fatal(err)
	}
	if c := img.RGBAAt(0, 0); c.R != 30 || c.G != 20 || c.B != 10 || c.A != 255 {
		t.Errorf("pixel = %v", c)
	}
}

func TestDecodeDIBErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short header", make([]byte, 10)},
		{"bad depth", dib(1, 1, 8, []byte{0, 0, 0, 0})},
		{"truncated pixels", dib(4, 4, 32, []byte{1, 2})},
		{"zero width", dib(0, 1, 32, nil)},
	}
	for _, tt := range tests {
		if _, err := decodeDIB(tt.data); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestBGRAToRGBA(t *testing.T) {
	img := bgraToRGBA([]byte{1, 2, 3, 0, 4, 5, 6, 0}, 2, 1)
	if c := img.RGBAAt(1, 0); c.R != 6 || c.G != 5 || c.B != 4 || c.A != 255 {
		t.Errorf("pixel = %v", c)
	}
}
