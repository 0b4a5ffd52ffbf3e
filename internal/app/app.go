// Package app wires the oculus subsystems into a running assistant.
//
// The App owns the full lifecycle: New connects the conversation side
// (session, pipeline, worker, speech output, listener), Run opens the camera,
// starts everything and runs the display loop, and Shutdown tears down
// whatever was started, in order.
//
// For testing, pass mock providers and a display via [WithDisplay].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/oculus/internal/capture"
	"github.com/MrWong99/oculus/internal/config"
	"github.com/MrWong99/oculus/internal/conversation"
	"github.com/MrWong99/oculus/internal/display"
	"github.com/MrWong99/oculus/internal/health"
	"github.com/MrWong99/oculus/internal/listener"
	"github.com/MrWong99/oculus/internal/observe"
	"github.com/MrWong99/oculus/internal/resilience"
	"github.com/MrWong99/oculus/internal/speech"
	"github.com/MrWong99/oculus/pkg/audio"
	"github.com/MrWong99/oculus/pkg/frame"
	"github.com/MrWong99/oculus/pkg/provider/llm"
	"github.com/MrWong99/oculus/pkg/provider/stt"
	"github.com/MrWong99/oculus/pkg/provider/tts"
	"github.com/MrWong99/oculus/pkg/provider/vad"
	"github.com/MrWong99/oculus/pkg/video"
)

// shutdownTimeout bounds the teardown Run performs on its own.
const shutdownTimeout = 5 * time.Second

// Providers holds one value per provider slot. Populated by main.go via the
// config registry. All fields are required.
type Providers struct {
	LLM   llm.Provider
	STT   stt.Provider
	TTS   tts.Provider
	VAD   vad.Engine
	Video video.Device
	Audio audio.Device
}

func (p *Providers) validate() error {
	var errs []error
	check := func(name string, missing bool) {
		if missing {
			errs = append(errs, fmt.Errorf("%s provider is required", name))
		}
	}
	check("llm", p.LLM == nil)
	check("stt", p.STT == nil)
	check("tts", p.TTS == nil)
	check("vad", p.VAD == nil)
	check("video", p.Video == nil)
	check("audio", p.Audio == nil)
	return errors.Join(errs...)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar

	frames   *frame.Buffer
	session  *conversation.Session
	speaker  *speech.Speaker
	worker   *conversation.Worker
	listener *listener.Listener
	display  display.Display
	producer *capture.Producer

	listening atomic.Bool

	mu sync.Mutex
	// closers run in order during Shutdown.
	closers  []namedCloser
	stopOnce sync.Once
}

type namedCloser struct {
	name  string
	close func() error
}

// Option is a functional option for New.
type Option func(*App)

// WithDisplay replaces the display chosen by display.mode.
func WithDisplay(d display.Display) Option {
	return func(a *App) { a.display = d }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets config reloads change the log level through lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// New creates an App from cfg and providers. Nothing is opened until Run.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers are required")
	}
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		frames:    frame.NewBuffer(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	retry := retryPolicy(cfg.Retry)
	a.session = conversation.NewSession(cfg.Assistant.SystemPrompt, voiceOf(cfg.Assistant.Voice))

	a.speaker = speech.New(providers.TTS, providers.Audio,
		speech.WithRetry(retry),
		speech.WithMetrics(a.metrics),
	)

	pipeline := conversation.NewPipeline(providers.LLM, a.speaker, a.session,
		conversation.WithRetry(retry),
		conversation.WithImageQuality(cfg.Conversation.ImageQuality),
		conversation.WithSampling(cfg.Conversation.Temperature, cfg.Conversation.MaxTokens),
		conversation.WithMetrics(a.metrics),
	)
	a.worker = conversation.NewWorker(pipeline, a.frames,
		conversation.Policy(cfg.Conversation.QueuePolicy),
		cfg.Conversation.QueueSize,
		conversation.WithWorkerMetrics(a.metrics),
	)

	l := cfg.Listener
	a.listener = listener.New(providers.Audio, providers.VAD, providers.STT,
		listener.WithFormat(cfg.Audio.InputSampleRate, cfg.Audio.FramesPerBuffer),
		listener.WithVAD(vad.Config{
			EnergyThreshold: l.EnergyThreshold,
			DynamicEnergy:   l.DynamicEnergy == nil || *l.DynamicEnergy,
			PauseThreshold:  l.PauseThreshold,
		}),
		listener.WithPhraseLimits(l.PreRoll, l.MinPhrase, l.PhraseTimeLimit),
		listener.WithRetry(retry),
		listener.WithMetrics(a.metrics),
	)

	if a.display == nil {
		a.display = a.newDisplay()
	}
	return a, nil
}

func (a *App) newDisplay() display.Display {
	if a.cfg.Display.Mode == config.DisplayHeadless {
		return display.Headless{}
	}
	return display.NewTerminal(a.frames, a.session.History,
		display.WithColumns(a.cfg.Display.Columns),
		display.WithFPS(a.cfg.Capture.FPS),
		display.WithBusy(a.worker.Busy),
	)
}

// Session returns the conversation session.
func (a *App) Session() *conversation.Session { return a.session }

// Frames returns the shared frame buffer.
func (a *App) Frames() *frame.Buffer { return a.frames }

// HealthCheckers returns readiness checks for the camera and the listener.
func (a *App) HealthCheckers() []health.Checker {
	maxAge := 2 * time.Second
	if a.cfg.Capture.FirstFrameTimeout > maxAge {
		maxAge = a.cfg.Capture.FirstFrameTimeout
	}
	return []health.Checker{
		health.FrameFreshness("camera", a.frames, maxAge),
		health.Flag("listener", a.listening.Load),
	}
}

// Run starts the camera, the listener and the question worker, then runs
// the display until the user quits or ctx ends. Startup failures abort Run.
// Whatever was started is torn down before Run returns. Run must be called
// at most once.
func (a *App) Run(ctx context.Context) (err error) {
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := a.Shutdown(sctx); serr != nil && err == nil {
			err = serr
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Teardown order is fixed up front; each closer only releases what was
	// actually started.
	a.addCloser("camera", func() error {
		if a.producer == nil {
			return nil
		}
		return a.producer.Stop()
	})
	a.addCloser("listener", func() error {
		a.listening.Store(false)
		a.listener.Stop(false)
		return nil
	})
	a.addCloser("worker", func() error {
		a.worker.Close()
		return nil
	})
	a.addCloser("speaker", a.speaker.Close)
	a.addCloser("audio", a.providers.Audio.Close)

	// ── 1. Camera ───────────────────────────────────────────────────────
	producer, err := capture.New(ctx, a.providers.Video, a.frames,
		capture.WithBackoff(a.cfg.Capture.RetryBackoff),
		capture.WithFirstFrameTimeout(a.cfg.Capture.FirstFrameTimeout),
		capture.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("app: open camera: %w", err)
	}
	a.producer = producer
	if err := producer.Start(); err != nil {
		return fmt.Errorf("app: start camera: %w", err)
	}

	// ── 2. Microphone ───────────────────────────────────────────────────
	if d := a.cfg.Listener.CalibrationDuration; d > 0 {
		slog.Info("calibrating microphone, please stay quiet", "duration", d)
		if err := a.listener.Calibrate(ctx, d); err != nil {
			return fmt.Errorf("app: calibrate microphone: %w", err)
		}
	}
	if err := a.listener.Start(ctx, a.onUtterance); err != nil {
		return fmt.Errorf("app: start listener: %w", err)
	}
	a.listening.Store(true)

	slog.Info("assistant ready, ask away", "session_id", a.session.ID)

	// ── 3. Worker and display loop ──────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.worker.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("app: worker: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		err := a.display.Run(gctx)
		switch {
		case gctx.Err() != nil:
			return nil
		case err != nil:
			return fmt.Errorf("app: display: %w", err)
		}
		slog.Info("quit requested")
		return nil
	})
	return g.Wait()
}

// onUtterance posts a transcribed question to the worker.
func (a *App) onUtterance(ctx context.Context, text string) {
	if !a.worker.Submit(text) {
		observe.Logger(ctx).Debug("question not queued", "question", text)
	}
}

func (a *App) addCloser(name string, fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Shutdown tears down everything Run started, in order: camera, listener
// (without waiting for a running callback), worker, speech output and the
// audio backend. If ctx expires first, the remaining closers are skipped and
// the context error is returned. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		closers := a.closers
		a.mu.Unlock()
		slog.Info("shutting down", "closers", len(closers))

		var errs []error
		for i, c := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := c.close(); err != nil {
				slog.Warn("closer error", "name", c.name, "err", err)
				errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			}
		}
		if len(errs) > 0 {
			shutdownErr = fmt.Errorf("app: shutdown: %w", errors.Join(errs...))
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ApplyConfig applies a reloaded config. The persona and the log level take
// effect immediately; any other change is logged and needs a restart.
func (a *App) ApplyConfig(old, updated *config.Config) {
	d := config.Diff(old, updated)
	if d.SystemPromptChanged {
		a.session.SetSystemPrompt(d.NewSystemPrompt)
		slog.Info("system prompt updated")
	}
	if d.VoiceChanged {
		a.session.SetVoice(voiceOf(d.NewVoice))
		slog.Info("voice updated", "voice", d.NewVoice.ID)
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level updated", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel maps a config log level to slog.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func voiceOf(v config.VoiceConfig) tts.Voice {
	return tts.Voice{ID: v.ID, Speed: v.Speed}
}

func retryPolicy(r config.RetryConfig) resilience.Policy {
	return resilience.Policy{
		MaxAttempts: r.MaxAttempts,
		Backoff:     r.Backoff,
		MaxBackoff:  r.MaxBackoff,
		Timeout:     r.Timeout,
	}
}
