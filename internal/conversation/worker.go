package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/oculus/internal/observe"
	"github.com/MrWong99/oculus/pkg/frame"
)

// Policy decides what [Worker.Submit] does while a question is in flight.
type Policy string

const (
	// PolicyQueue keeps questions in a bounded FIFO.
	PolicyQueue Policy = "queue"

	// PolicyDrop discards questions that arrive while another one is queued
	// or being answered.
	PolicyDrop Policy = "drop"
)

// Handler answers one question about one frame. [*Pipeline] implements it.
type Handler interface {
	Handle(ctx context.Context, text string, f *frame.Frame) error
}

// FrameSource yields the newest frame. [*frame.Buffer] implements it.
type FrameSource interface {
	Read(clone bool) (*frame.Frame, bool)
}

var (
	_ Handler     = (*Pipeline)(nil)
	_ FrameSource = (*frame.Buffer)(nil)
)

// WorkerOption is a functional option for [NewWorker].
type WorkerOption func(*Worker)

// WithWorkerMetrics records queue depth and dropped questions on m.
func WithWorkerMetrics(m *observe.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// Worker is the single consumer of transcribed questions. The frame for a
// question is read when the question is dequeued, not when it was heard.
type Worker struct {
	handler Handler
	frames  FrameSource
	policy  Policy
	metrics *observe.Metrics

	queue chan string
	busy  atomic.Bool

	mu sync.Mutex
	// outstanding counts accepted questions not yet answered or discarded.
	outstanding int
	closed      bool
	done        chan struct{}
}

// NewWorker returns a worker feeding h with frames from src. size bounds
// the FIFO under [PolicyQueue] and is ignored under [PolicyDrop].
func NewWorker(h Handler, src FrameSource, policy Policy, size int, opts ...WorkerOption) *Worker {
	if policy == PolicyDrop || size < 1 {
		size = 1
	}
	w := &Worker{
		handler: h,
		frames:  src,
		policy:  policy,
		queue:   make(chan string, size),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Submit enqueues a question. It never blocks and reports whether the
// question was accepted. Blank questions, questions after Close, questions
// that find the queue full, and under [PolicyDrop] questions that arrive
// while another one is pending are all rejected.
func (w *Worker) Submit(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	if w.policy == PolicyDrop && w.outstanding > 0 {
		w.dropped(text, "busy")
		return false
	}
	select {
	case w.queue <- text:
		w.outstanding++
		if w.metrics != nil {
			w.metrics.QueuedUtterances.Add(context.Background(), 1)
		}
		return true
	default:
		w.dropped(text, "queue full")
		return false
	}
}

func (w *Worker) dropped(text, reason string) {
	slog.Warn("question dropped", "reason", reason, "question", text)
	if w.metrics != nil {
		w.metrics.RecordUtterance(context.Background(), OutcomeDropped)
	}
}

// Run answers queued questions one at a time until ctx is cancelled or
// Close is called. A question being answered when Close is called is
// finished first; questions still queued are discarded. The worker accepts
// no further questions once Run has returned.
func (w *Worker) Run(ctx context.Context) error {
	defer w.discardQueued()
	for {
		select {
		case <-w.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		select {
		case <-w.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case text := <-w.queue:
			w.handle(ctx, text)
		}
	}
}

func (w *Worker) handle(ctx context.Context, text string) {
	w.busy.Store(true)
	defer func() {
		w.mu.Lock()
		w.outstanding--
		w.mu.Unlock()
		w.busy.Store(false)
	}()
	if w.metrics != nil {
		w.metrics.QueuedUtterances.Add(ctx, -1)
	}

	f, _ := w.frames.Read(true)
	err := w.handler.Handle(ctx, text, f)
	switch {
	case err == nil, errors.Is(err, ErrNoFrame):
	case ctx.Err() != nil:
		slog.Debug("question abandoned on shutdown", "question", text, "err", err)
	default:
		slog.Error("question failed, dropping it", "question", text, "err", err)
	}
}

// discardQueued closes the worker and drops the questions it will never
// answer.
func (w *Worker) discardQueued() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.done)
	}
	for {
		select {
		case text := <-w.queue:
			w.outstanding--
			if w.metrics != nil {
				w.metrics.QueuedUtterances.Add(context.Background(), -1)
			}
			slog.Debug("question discarded on shutdown", "question", text)
		default:
			return
		}
	}
}

// Busy reports whether a question is being answered right now.
func (w *Worker) Busy() bool { return w.busy.Load() }

// Pending returns the number of queued questions.
func (w *Worker) Pending() int { return len(w.queue) }

// Close stops accepting questions and makes Run return after the current
// question. Safe to call more than once.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.done)
	}
}
