// Package mock provides a scripted in-memory [video.Device] for unit tests.
//
// Reads are served from the Script slice in order; each [Step] either yields a
// frame or an error. When the script is exhausted, Read returns Fallback (a
// frame) or [video.ErrNoFrame] when Fallback is nil.
//
//	dev := &mock.Device{Script: []mock.Step{
//	    {Err: video.ErrNoFrame},
//	    {Frame: &frame.Frame{Data: []byte{1}}},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/oculus/pkg/frame"
	"github.com/MrWong99/oculus/pkg/video"
)

var _ video.Device = (*Device)(nil)

// Step is one scripted Read result.
type Step struct {
	Frame *frame.Frame
	Err   error
}

// Device is a mock implementation of [video.Device].
type Device struct {
	mu sync.Mutex

	// OpenErr is returned by Open.
	OpenErr error

	// Script is consumed one step per Read call.
	Script []Step

	// Fallback is cloned and returned once Script is exhausted.
	Fallback *frame.Frame

	// CloseOnExhaust makes the device report closed once Script is used up.
	CloseOnExhaust bool

	open bool

	// Call counters.
	OpenCalls  int
	ReadCalls  int
	CloseCalls int
}

// Open implements [video.Device].
func (d *Device) Open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls++
	if d.OpenErr != nil {
		return d.OpenErr
	}
	d.open = true
	return nil
}

// Read implements [video.Device].
func (d *Device) Read(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ReadCalls++
	if !d.open {
		return nil, video.ErrClosed
	}
	if len(d.Script) > 0 {
		step := d.Script[0]
		d.Script = d.Script[1:]
		if step.Err != nil {
			return nil, step.Err
		}
		return step.Frame.Clone(), nil
	}
	if d.CloseOnExhaust {
		d.open = false
		return nil, video.ErrClosed
	}
	if d.Fallback == nil {
		return nil, video.ErrNoFrame
	}
	return d.Fallback.Clone(), nil
}

// IsOpen implements [video.Device].
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Close implements [video.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCalls++
	d.open = false
	return nil
}

// Calls returns a snapshot of the call counters.
func (d *Device) Calls() (open, read, closeCalls int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.OpenCalls, d.ReadCalls, d.CloseCalls
}
