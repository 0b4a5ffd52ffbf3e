// Package mock provides in-memory mock implementations of the [audio.Device],
// [audio.Input] and [audio.Output] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	in := mock.NewInput(audio.Format{SampleRate: 16000, Channels: 1})
//	in.Push(speechFrame, speechFrame, silenceFrame)
//	out := &mock.Output{}
//	dev := &mock.Device{In: in, Out: out}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/oculus/pkg/audio"
)

// ─── Input ────────────────────────────────────────────────────────────────────

// Input is a mock [audio.Input] fed through [Input.Push]. Read blocks until a
// pushed frame is available, the context is cancelled, or Close is called.
type Input struct {
	format audio.Format
	frames chan audio.AudioFrame

	mu        sync.Mutex
	closed    bool
	done      chan struct{}
	readCount int

	// ReadErr, if non-nil, is returned by every Read call.
	ReadErr error
}

// NewInput returns an Input that reports format f and can buffer up to 4096
// pushed frames.
func NewInput(f audio.Format) *Input {
	return &Input{
		format: f,
		frames: make(chan audio.AudioFrame, 4096),
		done:   make(chan struct{}),
	}
}

// Push queues frames for subsequent Read calls. Frames without a format get
// the input's format.
func (in *Input) Push(frames ...audio.AudioFrame) {
	for _, f := range frames {
		if f.SampleRate == 0 {
			f.SampleRate = in.format.SampleRate
			f.Channels = in.format.Channels
		}
		in.frames <- f
	}
}

// PushPCM queues one frame per chunk of pcm.
func (in *Input) PushPCM(chunks ...[]byte) {
	for _, c := range chunks {
		in.Push(audio.AudioFrame{Data: c})
	}
}

// Format implements [audio.Input].
func (in *Input) Format() audio.Format { return in.format }

// Read implements [audio.Input].
func (in *Input) Read(ctx context.Context) (audio.AudioFrame, error) {
	in.mu.Lock()
	in.readCount++
	err := in.ReadErr
	in.mu.Unlock()
	if err != nil {
		return audio.AudioFrame{}, err
	}

	select {
	case <-in.done:
		return audio.AudioFrame{}, audio.ErrClosed
	default:
	}
	select {
	case f := <-in.frames:
		return f, nil
	case <-in.done:
		return audio.AudioFrame{}, audio.ErrClosed
	case <-ctx.Done():
		return audio.AudioFrame{}, ctx.Err()
	}
}

// Pending returns the number of pushed frames not yet read.
func (in *Input) Pending() int { return len(in.frames) }

// ReadCount returns how many times Read was called.
func (in *Input) ReadCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.readCount
}

// Close implements [audio.Input].
func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.closed {
		in.closed = true
		close(in.done)
	}
	return nil
}

// Closed reports whether Close was called.
func (in *Input) Closed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed
}

// ─── Output ───────────────────────────────────────────────────────────────────

// Output is a mock [audio.Output] that records everything written to it.
type Output struct {
	mu sync.Mutex

	// FormatResult is returned by Format. Defaults to 24000Hz mono when zero.
	FormatResult audio.Format

	// WriteErr, if non-nil, is returned by Write.
	WriteErr error

	// OnWrite, if set, is called with each chunk before it is recorded. It
	// runs with no lock held and may block to simulate a slow device.
	OnWrite func(pcm []byte)

	writes     [][]byte
	flushCount int
	closed     bool
}

// Format implements [audio.Output].
func (o *Output) Format() audio.Format {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.FormatResult.SampleRate == 0 {
		return audio.Format{SampleRate: 24000, Channels: 1}
	}
	return o.FormatResult
}

// Write implements [audio.Output].
func (o *Output) Write(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return audio.ErrClosed
	}
	if o.WriteErr != nil {
		err := o.WriteErr
		o.mu.Unlock()
		return err
	}
	hook := o.OnWrite
	o.mu.Unlock()

	if hook != nil {
		hook(pcm)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = append(o.writes, append([]byte(nil), pcm...))
	return nil
}

// Flush implements [audio.Output].
func (o *Output) Flush(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return audio.ErrClosed
	}
	o.flushCount++
	return nil
}

// Close implements [audio.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// Writes returns a copy of every chunk written, in order.
func (o *Output) Writes() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([][]byte, len(o.writes))
	copy(out, o.writes)
	return out
}

// Played returns all written PCM concatenated.
func (o *Output) Played() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	var all []byte
	for _, w := range o.writes {
		all = append(all, w...)
	}
	return all
}

// FlushCount returns how many times Flush was called.
func (o *Output) FlushCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushCount
}

// Closed reports whether Close was called.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock [audio.Device] that hands out In and Out.
type Device struct {
	mu sync.Mutex

	// In is returned by OpenInput.
	In audio.Input

	// Out is returned by OpenOutput.
	Out audio.Output

	// OpenInputErr and OpenOutputErr, if non-nil, are returned instead.
	OpenInputErr  error
	OpenOutputErr error

	// Call counters.
	OpenInputCalls  int
	OpenOutputCalls int
	CloseCalls      int

	// LastInputFormat records the format requested by the last OpenInput.
	LastInputFormat audio.Format
}

// OpenInput implements [audio.Device].
func (d *Device) OpenInput(_ context.Context, f audio.Format, _ int) (audio.Input, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenInputCalls++
	d.LastInputFormat = f
	if d.OpenInputErr != nil {
		return nil, d.OpenInputErr
	}
	if d.In == nil {
		d.In = NewInput(f)
	}
	return d.In, nil
}

// OpenOutput implements [audio.Device].
func (d *Device) OpenOutput(_ context.Context, f audio.Format, _ int) (audio.Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenOutputCalls++
	if d.OpenOutputErr != nil {
		return nil, d.OpenOutputErr
	}
	if d.Out == nil {
		d.Out = &Output{FormatResult: f}
	}
	return d.Out, nil
}

// Close implements [audio.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCalls++
	return nil
}

// Counts returns a snapshot of the call counters.
func (d *Device) Counts() (openInput, openOutput, closeCalls int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.OpenInputCalls, d.OpenOutputCalls, d.CloseCalls
}
