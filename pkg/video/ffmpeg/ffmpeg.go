// Package ffmpeg provides a [video.Device] that captures a webcam through an
// ffmpeg child process.
//
// ffmpeg is asked to re-encode the camera feed as a stream of concatenated
// JPEG images (image2pipe / mjpeg) on stdout. The device splits that stream on
// JPEG start/end-of-image markers and hands out one [frame.Frame] per image.
// Because every frame already is a JPEG, no re-encoding is needed when it is
// later sent to a model.
//
// Example:
//
//	dev := ffmpeg.New(video.Config{Device: "/dev/video0", Width: 640, Height: 480})
//	if err := dev.Open(ctx); err != nil { … }
//	f, err := dev.Read(ctx)
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/oculus/pkg/frame"
	"github.com/MrWong99/oculus/pkg/video"
)

const (
	defaultBinary      = "ffmpeg"
	defaultReadTimeout = 2 * time.Second
	defaultQuality     = 5 // ffmpeg -q:v scale, 2 (best) to 31 (worst)

	// maxFrameSize bounds a single JPEG so a corrupt stream cannot grow the
	// scanner buffer without limit.
	maxFrameSize = 16 << 20
)

// Compile-time interface assertion.
var _ video.Device = (*Device)(nil)

// source is the running producer of an MJPEG byte stream.
type source struct {
	r    io.ReadCloser
	wait func() error
}

// Option is a functional option for [Device].
type Option func(*Device)

// WithBinary overrides the ffmpeg executable. Default: "ffmpeg" on $PATH.
func WithBinary(path string) Option {
	return func(d *Device) { d.binary = path }
}

// WithInputFormat overrides the ffmpeg input demuxer (-f). By default it is
// derived from the operating system: v4l2 on Linux, avfoundation on macOS and
// dshow on Windows.
func WithInputFormat(format string) Option {
	return func(d *Device) { d.inputFormat = format }
}

// WithReadTimeout sets how long [Device.Read] waits for a frame before
// returning [video.ErrNoFrame]. Default: 2s.
func WithReadTimeout(d time.Duration) Option {
	return func(dev *Device) { dev.readTimeout = d }
}

// Device captures frames from an ffmpeg subprocess.
type Device struct {
	cfg         video.Config
	binary      string
	inputFormat string
	readTimeout time.Duration

	// start launches the byte stream; replaced in tests.
	start func(ctx context.Context) (*source, error)

	mu     sync.Mutex
	src    *source
	frames chan []byte
	done   chan struct{}
	err    error
}

// New creates an ffmpeg-backed device. The process is not started until
// [Device.Open] is called.
func New(cfg video.Config, opts ...Option) *Device {
	d := &Device{
		cfg:         cfg,
		binary:      defaultBinary,
		inputFormat: defaultInputFormat(runtime.GOOS),
		readTimeout: defaultReadTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	d.start = d.startProcess
	return d
}

// Args returns the ffmpeg command-line arguments the device will use.
func (d *Device) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", d.inputFormat}
	if d.cfg.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(d.cfg.FPS))
	}
	if d.cfg.Width > 0 && d.cfg.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", d.cfg.Width, d.cfg.Height))
	}
	args = append(args,
		"-i", inputName(d.inputFormat, d.cfg.Device),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", strconv.Itoa(defaultQuality),
		"pipe:1",
	)
	return args
}

// Open starts the ffmpeg process. It is a no-op while the process is
// running. A process that exited on its own is reaped and started again.
func (d *Device) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src != nil {
		select {
		case <-d.done:
			d.reap(d.src)
			d.src, d.frames = nil, nil
		default:
			return nil
		}
	}

	src, err := d.start(ctx)
	if err != nil {
		return fmt.Errorf("ffmpeg: open %q: %w", d.cfg.Device, err)
	}
	d.src = src
	d.frames = make(chan []byte, 1)
	d.done = make(chan struct{})
	d.err = nil
	go d.pump(src, d.frames, d.done)
	return nil
}

// Read returns the next JPEG frame.
func (d *Device) Read(ctx context.Context) (*frame.Frame, error) {
	d.mu.Lock()
	frames, done := d.frames, d.done
	d.mu.Unlock()
	if frames == nil {
		return nil, video.ErrClosed
	}

	timer := time.NewTimer(d.readTimeout)
	defer timer.Stop()

	select {
	case data := <-frames:
		return newFrame(data), nil
	case <-done:
		// The last frame may still be waiting after the stream ended.
		select {
		case data := <-frames:
			return newFrame(data), nil
		default:
		}
		d.mu.Lock()
		err := d.err
		d.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", video.ErrClosed, err)
		}
		return nil, video.ErrClosed
	case <-timer.C:
		return nil, video.ErrNoFrame
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsOpen reports whether the ffmpeg process is running.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// Close stops the ffmpeg process and waits for the reader to exit.
func (d *Device) Close() error {
	d.mu.Lock()
	src, done := d.src, d.done
	d.src = nil
	d.frames = nil
	d.mu.Unlock()

	if src == nil {
		return nil
	}
	_ = src.r.Close()
	<-done
	d.reap(src)
	return nil
}

// reap releases a process whose reader has exited.
func (d *Device) reap(src *source) {
	_ = src.r.Close()
	if err := src.wait(); err != nil && !isKilled(err) {
		slog.Debug("ffmpeg: process exited", "device", d.cfg.Device, "err", err)
	}
}

// pump splits the MJPEG stream into frames and keeps only the newest one in
// the channel.
func (d *Device) pump(src *source, frames chan []byte, done chan struct{}) {
	defer close(done)

	sc := bufio.NewScanner(src.r)
	sc.Buffer(make([]byte, 0, 256<<10), maxFrameSize)
	sc.Split(SplitJPEG)

	for sc.Scan() {
		data := bytes.Clone(sc.Bytes())
		select {
		case frames <- data:
		default:
			// Replace the stale frame nobody picked up yet.
			select {
			case <-frames:
			default:
			}
			frames <- data
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
	}
}

func (d *Device) startProcess(ctx context.Context) (*source, error) {
	cmd := exec.Command(d.binary, d.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	slog.Debug("ffmpeg: capture started", "device", d.cfg.Device, "pid", cmd.Process.Pid)
	return &source{
		r: stdout,
		wait: func() error {
			_ = cmd.Process.Kill()
			return cmd.Wait()
		},
	}, nil
}

// SplitJPEG is a [bufio.SplitFunc] that yields one complete JPEG image
// (SOI 0xFFD8 through EOI 0xFFD9 inclusive) per token. Bytes before the first
// SOI marker are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, []byte{0xFF, 0xD8})
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF that may begin a marker.
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+2:], []byte{0xFF, 0xD9})
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

func newFrame(data []byte) *frame.Frame {
	f := &frame.Frame{Data: data, Format: frame.FormatJPEG}
	if cfg, err := jpeg.DecodeConfig(bytes.NewReader(data)); err == nil {
		f.Width, f.Height = cfg.Width, cfg.Height
	}
	return f
}

func defaultInputFormat(goos string) string {
	switch goos {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "v4l2"
	}
}

func inputName(format, device string) string {
	switch format {
	case "dshow":
		return "video=" + device
	case "avfoundation":
		if device == "" {
			return "0"
		}
		return device
	default:
		if device == "" {
			return "/dev/video0"
		}
		if _, err := strconv.Atoi(device); err == nil {
			return "/dev/video" + device
		}
		return device
	}
}

func isKilled(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
