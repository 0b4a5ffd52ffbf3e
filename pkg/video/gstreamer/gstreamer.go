// Package gstreamer provides a [video.Device] backed by a GStreamer pipeline.
//
// Pipeline structure:
//
//	v4l2src → videoconvert → videoscale → capsfilter(RGB) → appsink
//
// The appsink keeps at most one buffer and drops older ones, so a slow reader
// always receives the newest picture. Frames are delivered as packed RGB24.
package gstreamer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/MrWong99/oculus/pkg/frame"
	"github.com/MrWong99/oculus/pkg/video"
)

const (
	defaultReadTimeout = 2 * time.Second

	// Raw frames carry no header, so the size must be pinned in the caps.
	defaultWidth  = 640
	defaultHeight = 480
)

var _ video.Device = (*Device)(nil)

// Option is a functional option for [Device].
type Option func(*Device)

// WithSource replaces the source element description (default "v4l2src").
// Useful values include "videotestsrc" and "autovideosrc".
func WithSource(desc string) Option {
	return func(d *Device) { d.source = desc }
}

// WithReadTimeout sets how long [Device.Read] waits before returning
// [video.ErrNoFrame]. Default: 2s.
func WithReadTimeout(t time.Duration) Option {
	return func(d *Device) { d.readTimeout = t }
}

// stream is a running pipeline.
type stream struct {
	frames chan []byte
	done   chan struct{}
	stop   func() error
}

// Device captures frames through GStreamer.
type Device struct {
	cfg         video.Config
	source      string
	readTimeout time.Duration

	// start builds and plays the pipeline; replaced in tests.
	start func() (*stream, error)

	mu     sync.Mutex
	cur    *stream
	width  int
	height int

	dropped atomic.Uint64
}

// New creates a GStreamer-backed device. The pipeline is built by Open.
func New(cfg video.Config, opts ...Option) *Device {
	d := &Device{
		cfg:         cfg,
		source:      "v4l2src",
		readTimeout: defaultReadTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	if d.cfg.Width <= 0 || d.cfg.Height <= 0 {
		d.cfg.Width, d.cfg.Height = defaultWidth, defaultHeight
	}
	d.start = d.startPipeline
	return d
}

// Open builds the pipeline and sets it to PLAYING. It is a no-op while the
// pipeline is playing. A pipeline that reached end of stream or failed is
// released and built again.
func (d *Device) Open(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cur != nil {
		select {
		case <-d.cur.done:
			if err := d.cur.stop(); err != nil {
				slog.Warn("gstreamer: release ended pipeline", "device", d.cfg.Device, "err", err)
			}
			d.cur = nil
		default:
			return nil
		}
	}

	st, err := d.start()
	if err != nil {
		return err
	}
	d.cur = st
	d.width, d.height = d.cfg.Width, d.cfg.Height
	return nil
}

func (d *Device) startPipeline() (*stream, error) {
	// Safe to call multiple times.
	gst.Init(nil)

	pipeline, err := gst.NewPipelineFromString(PipelineDescription(d.source, d.cfg))
	if err != nil {
		return nil, fmt.Errorf("gstreamer: create pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: find appsink: %w", err)
	}
	sink := app.SinkFromElement(elem)

	frames := make(chan []byte, 1)
	done := make(chan struct{})
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			return d.onNewSample(s, frames)
		},
		EOSFunc: func(*app.Sink) {
			slog.Debug("gstreamer: end of stream", "device", d.cfg.Device)
			closeOnce(done)
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("gstreamer: set playing: %w", err)
	}
	go d.watchBus(pipeline, done)
	return &stream{
		frames: frames,
		done:   done,
		stop:   func() error { return pipeline.SetState(gst.StateNull) },
	}, nil
}

// Read returns the newest RGB24 frame.
func (d *Device) Read(ctx context.Context) (*frame.Frame, error) {
	d.mu.Lock()
	st := d.cur
	w, h := d.width, d.height
	d.mu.Unlock()
	if st == nil {
		return nil, video.ErrClosed
	}

	timer := time.NewTimer(d.readTimeout)
	defer timer.Stop()

	select {
	case data := <-st.frames:
		return rgbFrame(data, w, h)
	case <-st.done:
		select {
		case data := <-st.frames:
			return rgbFrame(data, w, h)
		default:
		}
		return nil, video.ErrClosed
	case <-timer.C:
		return nil, video.ErrNoFrame
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func rgbFrame(data []byte, w, h int) (*frame.Frame, error) {
	if w*h*3 != len(data) {
		return nil, fmt.Errorf("%w: got %d bytes for %dx%d", video.ErrNoFrame, len(data), w, h)
	}
	return &frame.Frame{Data: data, Format: frame.FormatRGB24, Width: w, Height: h}, nil
}

// IsOpen reports whether the pipeline is running.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cur == nil {
		return false
	}
	select {
	case <-d.cur.done:
		return false
	default:
		return true
	}
}

// Close sets the pipeline to NULL and releases it.
func (d *Device) Close() error {
	d.mu.Lock()
	st := d.cur
	d.cur = nil
	d.mu.Unlock()

	if st == nil {
		return nil
	}
	closeOnce(st.done)
	if err := st.stop(); err != nil {
		return fmt.Errorf("gstreamer: set null: %w", err)
	}
	if n := d.dropped.Load(); n > 0 {
		slog.Debug("gstreamer: closed", "device", d.cfg.Device, "replaced_frames", n)
	}
	return nil
}

func (d *Device) onNewSample(sink *app.Sink, frames chan []byte) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// Skip rather than terminate the stream on one bad sample.
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	// GStreamer reuses the buffer.
	out := make([]byte, len(data))
	copy(out, data)
	buffer.Unmap()

	select {
	case frames <- out:
	default:
		select {
		case <-frames:
			d.dropped.Add(1)
		default:
		}
		select {
		case frames <- out:
		default:
		}
	}
	return gst.FlowOK
}

// watchBus logs pipeline errors and marks the device closed when the
// pipeline fails.
func (d *Device) watchBus(pipeline *gst.Pipeline, done chan struct{}) {
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-done:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("gstreamer: pipeline error",
				"device", d.cfg.Device,
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			closeOnce(done)
			return
		case gst.MessageEOS:
			closeOnce(done)
			return
		}
	}
}

// PipelineDescription renders the gst-launch style pipeline for cfg.
func PipelineDescription(source string, cfg video.Config) string {
	src := source
	if source == "v4l2src" && cfg.Device != "" {
		src = "v4l2src device=" + devicePath(cfg.Device)
	}
	caps := "video/x-raw,format=RGB"
	if cfg.Width > 0 && cfg.Height > 0 {
		caps += fmt.Sprintf(",width=%d,height=%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", cfg.FPS)
	}
	return fmt.Sprintf(
		"%s ! videoconvert ! videoscale ! %s ! appsink name=sink sync=false max-buffers=1 drop=true emit-signals=false",
		src, caps,
	)
}

// devicePath maps a camera index such as "0" to its V4L2 node.
func devicePath(device string) string {
	if _, err := strconv.Atoi(device); err == nil {
		return "/dev/video" + device
	}
	return device
}

var closeMu sync.Mutex

func closeOnce(ch chan struct{}) {
	closeMu.Lock()
	defer closeMu.Unlock()
	select {
	case <-ch:
	default:
		close(ch)
	}
}
