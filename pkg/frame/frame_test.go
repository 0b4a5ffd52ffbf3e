package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
)

func rgbFrame(w, h int, c color.RGBA) *Frame {
	data := make([]byte, w*h*3)
	for i := 0; i < len(data); i += 3 {
		data[i], data[i+1], data[i+2] = c.R, c.G, c.B
	}
	return &Frame{Data: data, Format: FormatRGB24, Width: w, Height: h}
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestClone_Nil(t *testing.T) {
	var f *Frame
	if f.Clone() != nil {
		t.Fatal("Clone of nil frame should be nil")
	}
}

func TestEncode_JPEGPassThrough(t *testing.T) {
	data := jpegBytes(t)
	f := &Frame{Data: data, Format: FormatJPEG}
	got, err := Encode(f, 50)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("JPEG frame should be returned unchanged")
	}
}

func TestEncode_RGB24(t *testing.T) {
	f := rgbFrame(8, 6, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	got, err := Encode(f, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("bounds = %v, want 8x6", b)
	}
}

func TestEncode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		f    *Frame
	}{
		{"empty jpeg", &Frame{Format: FormatJPEG}},
		{"short rgb", &Frame{Format: FormatRGB24, Width: 4, Height: 4, Data: make([]byte, 10)}},
		{"unknown format", &Frame{Format: Format(9), Data: []byte{1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Encode(tc.f, 80); !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestDataURL(t *testing.T) {
	data := jpegBytes(t)
	url, err := DataURL(&Frame{Data: data, Format: FormatJPEG}, DefaultJPEGQuality)
	if err != nil {
		t.Fatalf("DataURL: %v", err)
	}
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("url = %q, want prefix %q", url[:30], prefix)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Error("decoded payload differs from frame data")
	}
}

func TestFormat_String(t *testing.T) {
	if FormatJPEG.String() != "jpeg" || FormatRGB24.String() != "rgb24" || Format(7).String() != "unknown" {
		t.Error("unexpected Format.String output")
	}
}
