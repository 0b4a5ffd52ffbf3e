// Package video defines the camera abstraction used by the capture loop.
//
// A [Device] is a handle to one physical (or virtual) camera. Implementations
// live in sub-packages:
//
//   - video/ffmpeg spawns an ffmpeg process that emits an MJPEG stream.
//   - video/gstreamer builds a v4l2src → appsink pipeline delivering raw RGB.
//   - video/mock is a scripted in-memory device for tests.
//
// This package lives under pkg/ so that additional backends can be provided
// without touching the capture loop.
package video

import (
	"context"
	"errors"

	"github.com/MrWong99/oculus/pkg/frame"
)

// ErrNoFrame is returned by [Device.Read] when the device is open but did not
// deliver a frame. It is a transient condition; callers retry on the next
// iteration.
var ErrNoFrame = errors.New("video: no frame available")

// ErrClosed is returned by [Device.Read] after [Device.Close] or when the
// underlying stream terminated. Callers must stop reading.
var ErrClosed = errors.New("video: device closed")

// Device is a single camera handle.
//
// Implementations must be safe for a single reader goroutine plus concurrent
// calls to [Device.IsOpen] and [Device.Close].
type Device interface {
	// Open acquires the camera. Calling Open on an already open device is a
	// no-op. The ctx bounds the open attempt only.
	Open(ctx context.Context) error

	// Read blocks until the next frame is available, the ctx is cancelled, or
	// the device fails. The returned frame is owned by the caller.
	// Seq and CapturedAt are left for the caller to fill.
	Read(ctx context.Context) (*frame.Frame, error)

	// IsOpen reports whether the device is currently acquired.
	IsOpen() bool

	// Close releases the camera. Safe to call more than once.
	Close() error
}

// Config describes which camera to open and at what resolution.
type Config struct {
	// Device is the platform device path or index, e.g. "/dev/video0" or "0".
	Device string

	// Width and Height request a capture resolution. Zero means the device
	// default.
	Width  int
	Height int

	// FPS requests a frame rate. Zero means the device default.
	FPS int
}
