// Package audio defines the interfaces and helpers for local audio devices
// used by oculus.
//
// The two primary abstractions are:
//
//   - [Input]: a microphone delivering fixed-size buffers of 16-bit PCM.
//   - [Output]: a speaker accepting 16-bit PCM in arrival order.
//
// Implementations are provided by device-specific packages (audio/portaudio,
// audio/mock). The interfaces are intentionally narrow so the listener and the
// speech output stay decoupled from the audio backend.
//
// All PCM in this package is signed 16-bit little-endian.
package audio

import (
	"context"
	"errors"
)

// ErrClosed is returned by [Input.Read] and [Output.Write] after Close.
var ErrClosed = errors.New("audio: stream closed")

// Input is an open microphone stream.
//
// Read must only be called from one goroutine at a time. Close may be called
// concurrently with Read and unblocks it.
type Input interface {
	// Format reports the sample rate and channel count of frames returned by
	// Read.
	Format() Format

	// Read blocks until the next buffer of audio is captured. It returns
	// ErrClosed after Close and ctx.Err() when ctx is cancelled.
	Read(ctx context.Context) (AudioFrame, error)

	// Close stops capture and releases the device. Calling Close more than
	// once is safe and returns nil.
	Close() error
}

// Output is an open speaker stream.
//
// Write must only be called from one goroutine at a time.
type Output interface {
	// Format reports the sample rate and channel count expected by Write.
	Format() Format

	// Write plays pcm. It blocks until the device has accepted all complete
	// device buffers, so consecutive writes are played back-to-back in call
	// order. A trailing partial buffer is held until the next Write or Flush.
	Write(ctx context.Context, pcm []byte) error

	// Flush pads any held partial buffer with silence and plays it.
	Flush(ctx context.Context) error

	// Close stops playback and releases the device. Calling Close more than
	// once is safe and returns nil.
	Close() error
}

// Device opens microphone and speaker streams on one audio backend.
type Device interface {
	// OpenInput opens the default microphone with the requested format.
	OpenInput(ctx context.Context, f Format, framesPerBuffer int) (Input, error)

	// OpenOutput opens the default speaker with the requested format.
	OpenOutput(ctx context.Context, f Format, framesPerBuffer int) (Output, error)

	// Close releases backend-wide resources. Streams must be closed first.
	Close() error
}
