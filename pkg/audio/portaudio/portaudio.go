// Package portaudio implements [audio.Device] on top of PortAudio, giving
// access to the default system microphone and speaker.
//
// PortAudio is a C library; the package links against libportaudio through
// cgo. [New] initialises the library and [Device.Close] terminates it, so one
// Device should be created per process.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/oculus/pkg/audio"
)

var (
	_ audio.Device = (*Device)(nil)
	_ audio.Input  = (*Input)(nil)
	_ audio.Output = (*Output)(nil)
)

// Device is the PortAudio backend.
type Device struct {
	once sync.Once
}

// New initialises PortAudio.
func New() (*Device, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Device{}, nil
}

// Close terminates PortAudio. Calling Close more than once is safe.
func (d *Device) Close() error {
	var err error
	d.once.Do(func() {
		if e := pa.Terminate(); e != nil {
			err = fmt.Errorf("portaudio: terminate: %w", e)
		}
	})
	return err
}

// OpenInput opens the default input device.
func (d *Device) OpenInput(_ context.Context, f audio.Format, framesPerBuffer int) (audio.Input, error) {
	buf := make([]int16, framesPerBuffer*f.Channels)
	stream, err := pa.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start input stream: %w", err)
	}
	slog.Debug("portaudio: input opened", "format", f, "frames_per_buffer", framesPerBuffer)
	return &Input{stream: stream, buf: buf, format: f, started: time.Now()}, nil
}

// OpenOutput opens the default output device.
func (d *Device) OpenOutput(_ context.Context, f audio.Format, framesPerBuffer int) (audio.Output, error) {
	buf := make([]int16, framesPerBuffer*f.Channels)
	stream, err := pa.OpenDefaultStream(0, f.Channels, float64(f.SampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start output stream: %w", err)
	}
	slog.Debug("portaudio: output opened", "format", f, "frames_per_buffer", framesPerBuffer)
	return &Output{stream: stream, buf: buf, format: f}, nil
}

// Input is a blocking PortAudio capture stream.
type Input struct {
	mu      sync.Mutex
	stream  *pa.Stream
	buf     []int16
	format  audio.Format
	started time.Time
	closed  bool
}

// Format implements [audio.Input].
func (in *Input) Format() audio.Format { return in.format }

// Read captures one device buffer. Each call blocks for roughly one buffer
// duration.
func (in *Input) Read(ctx context.Context) (audio.AudioFrame, error) {
	if err := ctx.Err(); err != nil {
		return audio.AudioFrame{}, err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return audio.AudioFrame{}, audio.ErrClosed
	}
	if err := in.stream.Read(); err != nil {
		// Overflows lose samples but the stream stays usable.
		if errors.Is(err, pa.InputOverflowed) {
			slog.Debug("portaudio: input overflowed")
		} else {
			return audio.AudioFrame{}, fmt.Errorf("portaudio: read: %w", err)
		}
	}
	return audio.AudioFrame{
		Data:       audio.Int16ToBytes(in.buf),
		SampleRate: in.format.SampleRate,
		Channels:   in.format.Channels,
		Timestamp:  time.Since(in.started),
	}, nil
}

// Close stops and closes the stream.
func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true
	return closeStream(in.stream)
}

// Output is a blocking PortAudio playback stream.
type Output struct {
	mu      sync.Mutex
	stream  *pa.Stream
	buf     []int16
	format  audio.Format
	pending []byte
	closed  bool
}

// Format implements [audio.Output].
func (out *Output) Format() audio.Format { return out.format }

// Write plays every complete device buffer contained in pending+pcm.
func (out *Output) Write(ctx context.Context, pcm []byte) error {
	out.mu.Lock()
	defer out.mu.Unlock()
	if out.closed {
		return audio.ErrClosed
	}
	out.pending = append(out.pending, pcm...)
	bufBytes := len(out.buf) * 2
	for len(out.pending) >= bufBytes {
		if err := ctx.Err(); err != nil {
			out.pending = out.pending[:0]
			return err
		}
		audio.BytesToInt16(out.buf, out.pending[:bufBytes])
		if err := out.write(); err != nil {
			return err
		}
		out.pending = out.pending[bufBytes:]
	}
	// Compact so the backing array does not grow without bound.
	out.pending = append(out.pending[:0:0], out.pending...)
	return nil
}

// Flush plays the held partial buffer padded with silence.
func (out *Output) Flush(ctx context.Context) error {
	out.mu.Lock()
	defer out.mu.Unlock()
	if out.closed {
		return audio.ErrClosed
	}
	if len(out.pending) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		out.pending = nil
		return err
	}
	clear(out.buf)
	audio.BytesToInt16(out.buf, out.pending)
	out.pending = nil
	return out.write()
}

func (out *Output) write() error {
	if err := out.stream.Write(); err != nil {
		if errors.Is(err, pa.OutputUnderflowed) {
			slog.Debug("portaudio: output underflowed")
			return nil
		}
		return fmt.Errorf("portaudio: write: %w", err)
	}
	return nil
}

// Close stops and closes the stream.
func (out *Output) Close() error {
	out.mu.Lock()
	defer out.mu.Unlock()
	if out.closed {
		return nil
	}
	out.closed = true
	out.pending = nil
	return closeStream(out.stream)
}

func closeStream(s *pa.Stream) error {
	var errs []error
	if err := s.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: stop: %w", err))
	}
	if err := s.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close: %w", err))
	}
	return errors.Join(errs...)
}
