// Package speech plays assistant answers through the local speaker.
//
// A [Speaker] requests streamed synthesis for one answer and plays the PCM
// chunks in arrival order while later chunks are still being synthesised.
// One output stream is opened lazily and reused for every answer.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/oculus/internal/conversation"
	"github.com/MrWong99/oculus/internal/observe"
	"github.com/MrWong99/oculus/internal/resilience"
	"github.com/MrWong99/oculus/pkg/audio"
	"github.com/MrWong99/oculus/pkg/provider/tts"
)

// ErrClosed is returned by [Speaker.Speak] after Close.
var ErrClosed = errors.New("speech: speaker closed")

const (
	defaultBufferSize      = 16
	defaultFramesPerBuffer = 1024
)

var _ conversation.Speaker = (*Speaker)(nil)

// Option is a functional option for [New].
type Option func(*Speaker)

// WithRetry sets the retry policy for starting a synthesis stream. The
// policy's Timeout is ignored: an attempt context would end the stream.
func WithRetry(p resilience.Policy) Option {
	return func(s *Speaker) {
		p.Timeout = 0
		s.retry = p
	}
}

// WithBufferSize sets how many synthesised chunks may wait for playback.
func WithBufferSize(n int) Option {
	return func(s *Speaker) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// WithFramesPerBuffer sets the device buffer size of the output stream.
func WithFramesPerBuffer(n int) Option {
	return func(s *Speaker) {
		if n > 0 {
			s.framesPerBuffer = n
		}
	}
}

// WithMetrics records synthesis-to-playback latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// Speaker turns text into audio on the process-wide output device.
//
// Speak calls are serialised so answers never overlap. Close may be called
// while Speak is running and makes it return early.
type Speaker struct {
	provider tts.Provider
	device   audio.Device

	retry           resilience.Policy
	bufSize         int
	framesPerBuffer int
	metrics         *observe.Metrics

	speakMu sync.Mutex

	mu     sync.Mutex
	out    audio.Output
	closed bool
}

// New returns a Speaker that synthesises with p and plays through dev.
// The output stream is opened on the first Speak.
func New(p tts.Provider, dev audio.Device, opts ...Option) *Speaker {
	s := &Speaker{
		provider:        p,
		device:          dev,
		retry:           resilience.Policy{MaxAttempts: 1},
		bufSize:         defaultBufferSize,
		framesPerBuffer: defaultFramesPerBuffer,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak synthesises text with voice and blocks until it has been played.
// Blank text is a no-op. A synthesis error that arrives mid-stream stops
// synthesis, but the audio received up to that point is still played.
func (s *Speaker) Speak(ctx context.Context, text string, voice tts.Voice) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.speakMu.Lock()
	defer s.speakMu.Unlock()

	out, err := s.output(ctx)
	if err != nil {
		return err
	}

	ctx, span := observe.StartSpan(ctx, "speech.speak")
	defer span.End()
	start := time.Now()

	stream, err := resilience.RetryValue(ctx, s.retry, func(ctx context.Context) (<-chan tts.Chunk, error) {
		return s.provider.SynthesizeStream(ctx, text, voice)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("speech: synthesize: %w", err)
	}

	pcm := make(chan []byte, s.bufSize)
	played := make(chan error, 1)
	go func() { played <- play(ctx, out, pcm) }()

	synthErr := forward(ctx, stream, pcm)
	close(pcm)
	playErr := <-played

	if s.metrics != nil {
		s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	if playErr != nil {
		s.discard(out)
		playErr = fmt.Errorf("speech: playback: %w", playErr)
	}
	if synthErr != nil {
		synthErr = fmt.Errorf("speech: synthesize: %w", synthErr)
	}
	if err := errors.Join(synthErr, playErr); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// forward copies PCM from stream to pcm until the stream ends, reports an
// error or ctx is cancelled. The stream is drained in the background when
// forwarding stops early.
func forward(ctx context.Context, stream <-chan tts.Chunk, pcm chan<- []byte) error {
	for {
		var (
			c  tts.Chunk
			ok bool
		)
		select {
		case c, ok = <-stream:
		case <-ctx.Done():
			go audio.Drain(stream)
			return ctx.Err()
		}
		if !ok {
			// A provider closes the stream early when ctx ends.
			return ctx.Err()
		}
		if c.Err != nil {
			go audio.Drain(stream)
			return c.Err
		}
		if len(c.PCM) == 0 {
			continue
		}
		select {
		case pcm <- c.PCM:
		case <-ctx.Done():
			go audio.Drain(stream)
			return ctx.Err()
		}
	}
}

// play writes chunks to out in order and flushes the tail. After a write
// error the remaining chunks are discarded so the forwarder never blocks.
func play(ctx context.Context, out audio.Output, pcm <-chan []byte) error {
	var err error
	for b := range pcm {
		if err != nil {
			continue
		}
		err = out.Write(ctx, b)
	}
	if err != nil {
		return err
	}
	return out.Flush(ctx)
}

// output returns the open output stream, opening it on first use.
func (s *Speaker) output(ctx context.Context) (audio.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.out != nil {
		return s.out, nil
	}
	out, err := s.device.OpenOutput(ctx, tts.OutputFormat, s.framesPerBuffer)
	if err != nil {
		return nil, fmt.Errorf("speech: open output: %w", err)
	}
	s.out = out
	return out, nil
}

// discard closes out after a playback failure so the next Speak reopens the
// device.
func (s *Speaker) discard(out audio.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != out {
		return
	}
	if err := out.Close(); err != nil {
		observe.Logger(context.Background()).Warn("speech: close output after failure", "err", err)
	}
	s.out = nil
}

// Close releases the output stream. Speak returns [ErrClosed] afterwards.
// Safe to call more than once.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.out == nil {
		return nil
	}
	err := s.out.Close()
	s.out = nil
	if err != nil {
		return fmt.Errorf("speech: close output: %w", err)
	}
	return nil
}
