// Package listener turns microphone audio into transcribed questions in the
// background.
//
// A [Listener] reads the microphone on its own goroutine, cuts the stream
// into phrases with a VAD session, transcribes each phrase and hands the
// text to a callback. Capture never waits for transcription: finished
// phrases are queued and transcribed one at a time on a second goroutine.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/oculus/internal/observe"
	"github.com/MrWong99/oculus/internal/resilience"
	"github.com/MrWong99/oculus/pkg/audio"
	"github.com/MrWong99/oculus/pkg/provider/stt"
	"github.com/MrWong99/oculus/pkg/provider/vad"
)

var (
	// ErrStarted is returned by Start when the listener is already running.
	ErrStarted = errors.New("listener: already started")

	// ErrStopped is returned by Calibrate and Start after Stop.
	ErrStopped = errors.New("listener: stopped")

	// ErrCalibrating is returned by Calibrate and Start while a calibration
	// is running.
	ErrCalibrating = errors.New("listener: calibration in progress")
)

const (
	defaultSampleRate      = 16000
	defaultFramesPerBuffer = 1024
	defaultPreRoll         = 500 * time.Millisecond
	defaultMinPhrase       = 300 * time.Millisecond

	// phraseQueueSize bounds the phrases waiting for transcription.
	phraseQueueSize = 4
)

// Callback receives one transcribed question. It runs on the listener's
// transcription goroutine; the next phrase is not transcribed until it
// returns.
type Callback func(ctx context.Context, text string)

// Option is a functional option for [New].
type Option func(*Listener)

// WithFormat sets the microphone sample rate and buffer size.
func WithFormat(sampleRate, framesPerBuffer int) Option {
	return func(l *Listener) {
		if sampleRate > 0 {
			l.sampleRate = sampleRate
		}
		if framesPerBuffer > 0 {
			l.framesPerBuffer = framesPerBuffer
		}
	}
}

// WithVAD sets the VAD session parameters. SampleRate is always taken from
// the microphone format.
func WithVAD(cfg vad.Config) Option {
	return func(l *Listener) { l.vadCfg = cfg }
}

// WithPhraseLimits sets the pre-roll kept before speech onset, the minimum
// voiced length of a phrase and the maximum phrase length (zero: no limit).
func WithPhraseLimits(preRoll, minPhrase, timeLimit time.Duration) Option {
	return func(l *Listener) {
		l.preRoll = preRoll
		l.minPhrase = minPhrase
		l.timeLimit = timeLimit
	}
}

// WithRetry sets the retry policy for transcription calls.
func WithRetry(p resilience.Policy) Option {
	return func(l *Listener) { l.retry = p }
}

// WithMetrics records transcription latency and outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// Listener captures and transcribes speech from one microphone.
type Listener struct {
	device      audio.Device
	engine      vad.Engine
	transcriber stt.Provider

	sampleRate      int
	framesPerBuffer int
	vadCfg          vad.Config
	preRoll         time.Duration
	minPhrase       time.Duration
	timeLimit       time.Duration
	retry           resilience.Policy
	metrics         *observe.Metrics

	// conv is used by Calibrate and then only by the capture goroutine;
	// calibrating keeps the two apart.
	conv *audio.Converter

	mu          sync.Mutex
	input       audio.Input
	session     vad.SessionHandle
	started     bool
	calibrating bool
	stopped     bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a listener that records from dev, segments with engine and
// transcribes with transcriber. Nothing is opened until Calibrate or Start.
func New(dev audio.Device, engine vad.Engine, transcriber stt.Provider, opts ...Option) *Listener {
	l := &Listener{
		device:          dev,
		engine:          engine,
		transcriber:     transcriber,
		sampleRate:      defaultSampleRate,
		framesPerBuffer: defaultFramesPerBuffer,
		preRoll:         defaultPreRoll,
		minPhrase:       defaultMinPhrase,
		retry:           resilience.Policy{MaxAttempts: 1},
	}
	for _, o := range opts {
		o(l)
	}
	l.vadCfg.SampleRate = l.sampleRate
	l.conv = &audio.Converter{Target: audio.Format{SampleRate: l.sampleRate, Channels: 1}}
	return l
}

// open opens the microphone and the VAD session once. mu must be held.
func (l *Listener) open(ctx context.Context) error {
	if l.stopped {
		return ErrStopped
	}
	if l.input != nil {
		return nil
	}
	in, err := l.device.OpenInput(ctx, audio.Format{SampleRate: l.sampleRate, Channels: 1}, l.framesPerBuffer)
	if err != nil {
		return fmt.Errorf("listener: open microphone: %w", err)
	}
	sess, err := l.engine.NewSession(l.vadCfg)
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("listener: new vad session: %w", err)
	}
	l.input, l.session = in, sess
	return nil
}

// Calibrate samples d of ambient audio and adjusts the speech threshold to
// the room. It must run before Start and blocks for about d. VAD sessions
// without a notion of a threshold just skip the audio. Stop may be called
// while Calibrate runs and makes it return [ErrStopped].
func (l *Listener) Calibrate(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	switch {
	case l.started:
		l.mu.Unlock()
		return ErrStarted
	case l.calibrating:
		l.mu.Unlock()
		return ErrCalibrating
	}
	if err := l.open(ctx); err != nil {
		l.mu.Unlock()
		return err
	}
	in, sess := l.input, l.session
	l.calibrating = true
	l.wg.Add(1)
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.calibrating = false
		l.mu.Unlock()
		l.wg.Done()
	}()

	cal, _ := sess.(vad.Calibrator)
	var heard time.Duration
	for heard < d {
		f, err := in.Read(ctx)
		if err != nil {
			l.mu.Lock()
			stopped := l.stopped
			l.mu.Unlock()
			if stopped {
				return ErrStopped
			}
			return fmt.Errorf("listener: calibrate: %w", err)
		}
		mono := l.conv.Convert(f).Data
		if cal != nil {
			cal.Calibrate(mono)
		}
		heard += audio.Duration(mono, l.sampleRate, 1)
	}
	if cal != nil {
		slog.Info("listener calibrated", "threshold", cal.Threshold(), "sampled", heard)
	}
	return nil
}

// Threshold returns the VAD speech threshold, or 0 when the VAD session has
// none or the listener is not open.
func (l *Listener) Threshold() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cal, ok := l.session.(vad.Calibrator); ok {
		return cal.Threshold()
	}
	return 0
}

// Start begins listening and returns immediately. cb is invoked once per
// recognised phrase until Stop is called or ctx is cancelled.
func (l *Listener) Start(ctx context.Context, cb Callback) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrStarted
	}
	if l.calibrating {
		return ErrCalibrating
	}
	if err := l.open(ctx); err != nil {
		return err
	}
	l.started = true

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	phrases := make(chan []byte, phraseQueueSize)
	seg := &segmenter{
		sess:       l.session,
		sampleRate: l.sampleRate,
		preRoll:    l.preRoll,
		minPhrase:  l.minPhrase,
		limit:      l.timeLimit,
	}

	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		defer close(phrases)
		l.capture(ctx, l.input, seg, phrases)
	}()
	go func() {
		defer l.wg.Done()
		for pcm := range phrases {
			if ctx.Err() != nil {
				continue
			}
			l.transcribe(ctx, pcm, cb)
		}
	}()
	return nil
}

// capture reads the microphone until it is closed or ctx ends.
func (l *Listener) capture(ctx context.Context, in audio.Input, seg *segmenter, phrases chan<- []byte) {
	for {
		f, err := in.Read(ctx)
		if err != nil {
			if p := seg.flush(); p != nil {
				l.enqueue(phrases, p)
			}
			if ctx.Err() == nil && !errors.Is(err, audio.ErrClosed) {
				slog.Error("listener: microphone read failed, listening stopped", "err", err)
			}
			return
		}
		p, err := seg.push(l.conv.Convert(f).Data)
		if err != nil {
			slog.Warn("listener: vad rejected frame", "err", err)
			continue
		}
		if p != nil {
			l.enqueue(phrases, p)
		}
	}
}

func (l *Listener) enqueue(phrases chan<- []byte, pcm []byte) {
	select {
	case phrases <- pcm:
	default:
		slog.Warn("listener: transcription backlog full, phrase dropped",
			"duration", audio.Duration(pcm, l.sampleRate, 1))
	}
}

// transcribe turns one phrase into text and invokes cb unless the phrase
// was unintelligible or empty.
func (l *Listener) transcribe(ctx context.Context, pcm []byte, cb Callback) {
	ctx, span := observe.StartSpan(ctx, "listener.transcribe")
	defer span.End()
	log := observe.Logger(ctx)

	u := stt.NewUtterance(pcm, l.sampleRate)
	start := time.Now()
	t, err := resilience.RetryValue(ctx, l.retry, func(ctx context.Context) (stt.Transcript, error) {
		t, err := l.transcriber.Transcribe(ctx, u)
		if errors.Is(err, stt.ErrUnrecognized) {
			return t, resilience.Permanent(err)
		}
		return t, err
	})
	if l.metrics != nil {
		l.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	}

	switch {
	case errors.Is(err, stt.ErrUnrecognized):
		log.Info("could not understand audio", "duration", u.Duration)
		return
	case err != nil:
		if ctx.Err() == nil {
			span.RecordError(err)
			log.Error("transcription failed, phrase dropped", "duration", u.Duration, "err", err)
		}
		return
	}

	text := strings.TrimSpace(t.Text)
	if text == "" {
		return
	}
	log.Debug("heard", "text", text, "duration", u.Duration)
	cb(ctx, text)
}

// Stop ends listening and releases the microphone. With wait it blocks until
// a running calibration or a callback already in progress has returned; without wait at most one
// late callback may still run after Stop returns. Safe to call more than
// once.
func (l *Listener) Stop(wait bool) {
	l.mu.Lock()
	l.stopped = true
	if l.cancel != nil {
		l.cancel()
	}
	in, sess := l.input, l.session
	l.input, l.session = nil, nil
	l.mu.Unlock()

	if in != nil {
		if err := in.Close(); err != nil {
			slog.Warn("listener: close microphone", "err", err)
		}
	}
	if wait {
		l.wg.Wait()
	}
	if sess != nil {
		// The capture goroutine may still hold the session without wait;
		// closed sessions only return errors.
		_ = sess.Close()
	}
}

