// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (an energy gate, WebRTC VAD,
// Silero, ...) and surfaces it as a stateful, per-stream session. Each session
// maintains its own state (adaptive thresholds, pause timers) so that
// calibration on one stream never leaks into another.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a detection
// result, making it suitable for the microphone loop that gates transcription.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import "time"

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the expected duration of each audio frame in milliseconds.
	// Zero accepts frames of any length.
	FrameSizeMs int

	// EnergyThreshold is the RMS level (in 16-bit sample units) above which a
	// frame counts as speech. Engines without an energy notion ignore it.
	EnergyThreshold float64

	// DynamicEnergy lets the threshold follow the ambient noise floor while
	// no speech is detected.
	DynamicEnergy bool

	// DynamicDamping is the fraction of the old threshold kept per second of
	// ambient audio. Range (0, 1). Typical: 0.15.
	DynamicDamping float64

	// DynamicRatio is the multiple of ambient energy the threshold is pulled
	// towards. Typical: 1.5.
	DynamicRatio float64

	// PauseThreshold is the silence duration after speech that ends a phrase.
	PauseThreshold time.Duration
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine. Each session maintains its own detection state; Reset clears this state
// without closing the session.
//
// A SessionHandle should not be shared between goroutines unless the implementation
// explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection result.
	// The frame must be raw little-endian PCM at the configured SampleRate.
	// Returns an error if the frame size is wrong or if the engine encounters an
	// internal failure.
	//
	// This method is designed to be called synchronously in the audio pipeline loop;
	// it must not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears phrase state (speech-start and pause counters) without
	// closing the session. Calibrated thresholds are kept.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// ProcessFrame and Reset must return errors or be no-ops. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Calibrator is implemented by sessions that can adapt to ambient noise.
// Calibrate is fed frames recorded while nobody speaks.
type Calibrator interface {
	// Calibrate adjusts the session's threshold using one ambient frame.
	Calibrate(frame []byte)

	// Threshold returns the current speech threshold.
	Threshold() float64
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration. The session
	// is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid or if the engine cannot
	// allocate resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
