// Package frame holds the single most-recently captured camera frame and the
// helpers needed to hand it to a multimodal model.
//
// The central type is [Buffer]: the capture loop overwrites it with every new
// frame, the display loop reads it without copying, and the conversation
// pipeline takes a deep copy at the moment it builds a request. No history of
// older frames is retained.
package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"
)

// Format identifies how the bytes in [Frame.Data] are laid out.
type Format int

const (
	// FormatJPEG means Data holds a complete JPEG file (e.g. one MJPEG frame).
	FormatJPEG Format = iota

	// FormatRGB24 means Data holds packed 8-bit RGB pixels, row-major,
	// Width*Height*3 bytes long.
	FormatRGB24
)

// String returns the human-readable name of the format.
func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatRGB24:
		return "rgb24"
	default:
		return "unknown"
	}
}

// DefaultJPEGQuality is the quality used by [Encode] when re-encoding raw
// frames for the model.
const DefaultJPEGQuality = 85

// ErrMalformed is returned when a frame's Data does not match its Format and
// dimensions.
var ErrMalformed = errors.New("frame: malformed frame data")

// Frame is one captured image.
//
// Frames stored in a [Buffer] are treated as immutable: producers must not
// touch Data after [Buffer.Write], and readers that need to modify a frame
// must ask for a copy.
type Frame struct {
	// Data is the image payload, interpreted according to Format.
	Data []byte

	// Format describes the layout of Data.
	Format Format

	// Width and Height are the image dimensions in pixels. For JPEG frames
	// they may be zero when the producer does not know them.
	Width  int
	Height int

	// Seq is a per-producer monotonically increasing sequence number.
	Seq uint64

	// CapturedAt is the wall-clock time the frame was acquired.
	CapturedAt time.Time
}

// Clone returns a deep copy of f. The returned frame shares no memory with f.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return &c
}

// Image decodes the frame into an [image.Image].
func (f *Frame) Image() (image.Image, error) {
	switch f.Format {
	case FormatJPEG:
		img, err := jpeg.Decode(bytes.NewReader(f.Data))
		if err != nil {
			return nil, fmt.Errorf("frame: decode jpeg: %w", err)
		}
		return img, nil
	case FormatRGB24:
		if f.Width <= 0 || f.Height <= 0 || len(f.Data) < f.Width*f.Height*3 {
			return nil, fmt.Errorf("%w: %dx%d rgb24 with %d bytes", ErrMalformed, f.Width, f.Height, len(f.Data))
		}
		img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
		for i, j := 0, 0; i < f.Width*f.Height*3; i, j = i+3, j+4 {
			img.Pix[j] = f.Data[i]
			img.Pix[j+1] = f.Data[i+1]
			img.Pix[j+2] = f.Data[i+2]
			img.Pix[j+3] = 0xff
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: unknown format %d", ErrMalformed, f.Format)
	}
}

// Encode returns f as JPEG bytes. JPEG frames are returned as-is; raw frames
// are encoded with the given quality (or [DefaultJPEGQuality] when quality is
// out of range).
func Encode(f *Frame, quality int) ([]byte, error) {
	if f == nil {
		return nil, errors.New("frame: nil frame")
	}
	if f.Format == FormatJPEG {
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("%w: empty jpeg", ErrMalformed)
		}
		return f.Data, nil
	}
	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("frame: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL encodes f as a self-contained "data:image/jpeg;base64,..." URL
// suitable for the image part of a chat request. quality applies to raw frames
// only, as in [Encode].
func DataURL(f *Frame, quality int) (string, error) {
	data, err := Encode(f, quality)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}
