// Package capture runs the camera acquisition loop that keeps the shared
// frame buffer filled with the newest picture.
//
// A [Producer] owns one [video.Device]. Construction is fatal-on-failure: if
// the camera cannot be opened, or does not deliver a first frame, [New]
// returns an error and nothing is left running. Once started, the loop treats
// read failures as transient and simply tries again; only a closed device ends
// the loop on its own.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/oculus/internal/observe"
	"github.com/MrWong99/oculus/pkg/frame"
	"github.com/MrWong99/oculus/pkg/video"
)

// ErrOpen is returned by [New] when the camera cannot be opened.
var ErrOpen = errors.New("capture: cannot open camera")

// ErrFirstFrame is returned by [New] when the camera opened but did not
// deliver a first frame.
var ErrFirstFrame = errors.New("capture: no first frame")

const (
	defaultBackoff           = 10 * time.Millisecond
	defaultFirstFrameTimeout = 5 * time.Second
)

// State is the lifecycle state of a [Producer].
type State int

const (
	// Stopped means no acquisition goroutine is running.
	Stopped State = iota

	// Running means the acquisition goroutine is reading frames.
	Running
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of producer counters.
type Stats struct {
	// Captured is the number of frames written to the buffer, including the
	// first frame read by New.
	Captured uint64

	// Failures is the number of transient read failures.
	Failures uint64
}

// Option is a functional option for [New].
type Option func(*Producer)

// WithBackoff sets the pause after a transient read failure. Default: 10ms.
func WithBackoff(d time.Duration) Option {
	return func(p *Producer) { p.backoff = d }
}

// WithFirstFrameTimeout bounds how long New waits for the first frame.
// Default: 5s.
func WithFirstFrameTimeout(d time.Duration) Option {
	return func(p *Producer) { p.firstFrameTimeout = d }
}

// WithMetrics records frame and failure counters on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Producer) { p.metrics = m }
}

// Producer continuously reads frames from a camera into a [frame.Buffer].
//
// All methods are safe for concurrent use.
type Producer struct {
	dev               video.Device
	buf               *frame.Buffer
	backoff           time.Duration
	firstFrameTimeout time.Duration
	metrics           *observe.Metrics

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	seq      atomic.Uint64
	captured atomic.Uint64
	failures atomic.Uint64
}

// New opens dev, reads a first frame into buf and returns a stopped Producer.
// A failure to open the camera wraps [ErrOpen]; a failure to read the first
// frame wraps [ErrFirstFrame]. In both cases the device is closed again.
func New(ctx context.Context, dev video.Device, buf *frame.Buffer, opts ...Option) (*Producer, error) {
	p := &Producer{
		dev:               dev,
		buf:               buf,
		backoff:           defaultBackoff,
		firstFrameTimeout: defaultFirstFrameTimeout,
	}
	for _, o := range opts {
		o(p)
	}

	if err := dev.Open(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	if err := p.readFirst(ctx); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("%w: %w", ErrFirstFrame, err)
	}
	return p, nil
}

// readFirst retries ErrNoFrame until a frame arrives or the timeout expires.
func (p *Producer) readFirst(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.firstFrameTimeout)
	defer cancel()

	for {
		f, err := p.dev.Read(ctx)
		if err == nil {
			p.store(ctx, f)
			return nil
		}
		if !errors.Is(err, video.ErrNoFrame) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.backoff):
		}
	}
}

// Start launches the acquisition goroutine. Calling Start while running is a
// no-op. If the device was closed (by [Producer.Stop] or because the stream
// ended) it is reopened first.
func (p *Producer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Running {
		return nil
	}
	if !p.dev.IsOpen() {
		if err := p.dev.Open(context.Background()); err != nil {
			return fmt.Errorf("%w: %w", ErrOpen, err)
		}
	}

	if p.cancel != nil {
		// Left over from a loop that ended on its own.
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.state = Running
	go p.loop(ctx, done)

	slog.Info("capture started")
	return nil
}

// Stop ends the acquisition goroutine, waits for it to exit and releases the
// device. No frame is written to the buffer after Stop returns. Calling Stop
// more than once is safe.
func (p *Producer) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.state = Stopped
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		slog.Info("capture stopped", "captured", p.captured.Load(), "failures", p.failures.Load())
	}
	if err := p.dev.Close(); err != nil {
		return fmt.Errorf("capture: close device: %w", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (p *Producer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a snapshot of the producer counters.
func (p *Producer) Stats() Stats {
	return Stats{
		Captured: p.captured.Load(),
		Failures: p.failures.Load(),
	}
}

func (p *Producer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	failing := false
	for {
		if ctx.Err() != nil {
			return
		}

		f, err := p.dev.Read(ctx)
		switch {
		case err == nil:
			if failing {
				slog.Info("capture recovered", "failures", p.failures.Load())
				failing = false
			}
			p.store(ctx, f)
			continue

		case ctx.Err() != nil:
			return

		case errors.Is(err, video.ErrClosed) || !p.dev.IsOpen():
			slog.Warn("capture device closed, stopping", "err", err)
			p.markStopped(done)
			return
		}

		p.failures.Add(1)
		if p.metrics != nil {
			p.metrics.CaptureFailures.Add(ctx, 1)
		}
		if !failing {
			slog.Warn("capture read failed, retrying", "err", err)
			failing = true
		} else {
			slog.Debug("capture read failed", "err", err)
		}

		if p.backoff > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.backoff):
			}
		}
	}
}

// markStopped records that the loop owning done ended by itself. A concurrent
// Start/Stop that already replaced done is left untouched.
func (p *Producer) markStopped(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == done {
		p.state = Stopped
	}
}

func (p *Producer) store(ctx context.Context, f *frame.Frame) {
	f.Seq = p.seq.Add(1)
	if f.CapturedAt.IsZero() {
		f.CapturedAt = time.Now()
	}
	p.buf.Write(f)
	p.captured.Add(1)
	if p.metrics != nil {
		p.metrics.FramesCaptured.Add(ctx, 1)
	}
}
