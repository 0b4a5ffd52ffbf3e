// Package energy implements a [vad.Engine] that classifies audio by its RMS
// energy against an adaptive threshold.
//
// The threshold starts at [vad.Config.EnergyThreshold] and, when dynamic
// adjustment is enabled, drifts towards DynamicRatio × ambient energy while
// no speech is detected:
//
//	damping   = DynamicDamping ^ frameSeconds
//	threshold = threshold·damping + energy·DynamicRatio·(1 − damping)
//
// The same update is applied unconditionally by [Session.Calibrate], which is
// meant to be fed a second or so of room noise before listening starts.
//
// A phrase starts on the first frame above the threshold and ends once
// PauseThreshold of consecutive below-threshold audio has been seen.
package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/oculus/pkg/audio"
	"github.com/MrWong99/oculus/pkg/provider/vad"
)

const (
	DefaultEnergyThreshold = 300.0
	DefaultDynamicDamping  = 0.15
	DefaultDynamicRatio    = 1.5
	DefaultPauseThreshold  = 800 * time.Millisecond

	// minThreshold keeps a silent room from pulling the threshold so low
	// that line noise reads as speech.
	minThreshold = 50.0
)

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
	_ vad.Calibrator    = (*Session)(nil)
)

// errClosed is returned by ProcessFrame after Close.
var errClosed = errors.New("energy: session closed")

// Engine creates energy-gate sessions. The zero value is ready to use.
type Engine struct{}

// New returns an Engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg, fills defaults and returns a session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.EnergyThreshold <= 0 {
		cfg.EnergyThreshold = DefaultEnergyThreshold
	}
	if cfg.DynamicDamping <= 0 || cfg.DynamicDamping >= 1 {
		cfg.DynamicDamping = DefaultDynamicDamping
	}
	if cfg.DynamicRatio <= 0 {
		cfg.DynamicRatio = DefaultDynamicRatio
	}
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = DefaultPauseThreshold
	}
	return &Session{cfg: cfg, threshold: cfg.EnergyThreshold}, nil
}

// Session is a single-stream energy detector. It is safe for concurrent use.
type Session struct {
	cfg vad.Config

	mu        sync.Mutex
	threshold float64
	speaking  bool
	silence   time.Duration
	closed    bool
}

// ProcessFrame classifies one frame.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, errClosed
	}
	if s.cfg.FrameSizeMs > 0 {
		want := audio.BytesFor(time.Duration(s.cfg.FrameSizeMs)*time.Millisecond, s.cfg.SampleRate, 1)
		if len(frame) != want {
			return vad.VADEvent{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), want)
		}
	}

	energy := audio.RMS(frame)
	dur := audio.Duration(frame, s.cfg.SampleRate, 1)
	ev := vad.VADEvent{Probability: min(1, energy/(2*s.threshold))}

	if !s.speaking {
		if energy > s.threshold {
			s.speaking = true
			s.silence = 0
			ev.Type = vad.VADSpeechStart
			return ev, nil
		}
		if s.cfg.DynamicEnergy {
			s.adjust(energy, dur)
		}
		ev.Type = vad.VADSilence
		return ev, nil
	}

	if energy > s.threshold {
		s.silence = 0
		ev.Type = vad.VADSpeechContinue
		return ev, nil
	}
	s.silence += dur
	if s.silence >= s.cfg.PauseThreshold {
		s.speaking = false
		s.silence = 0
		ev.Type = vad.VADSpeechEnd
		return ev, nil
	}
	ev.Type = vad.VADSpeechContinue
	return ev, nil
}

// Calibrate folds one ambient frame into the threshold.
func (s *Session) Calibrate(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjust(audio.RMS(frame), audio.Duration(frame, s.cfg.SampleRate, 1))
}

// adjust must be called with mu held.
func (s *Session) adjust(energy float64, dur time.Duration) {
	damping := math.Pow(s.cfg.DynamicDamping, dur.Seconds())
	target := energy * s.cfg.DynamicRatio
	s.threshold = max(minThreshold, s.threshold*damping+target*(1-damping))
}

// Threshold returns the current energy threshold.
func (s *Session) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// Reset clears phrase state. The calibrated threshold is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = false
	s.silence = 0
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
