package audio

import "time"

// AudioFrame is one buffer of captured audio.
type AudioFrame struct {
	// PCM audio data, 16-bit little-endian.
	Data []byte

	// SampleRate in Hz (e.g. 16000 for microphone input).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Format returns the frame's sample rate and channel count.
func (f AudioFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	return Duration(f.Data, f.SampleRate, f.Channels)
}
