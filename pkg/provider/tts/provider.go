// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (OpenAI tts-1, ElevenLabs)
// and streams raw PCM as it is synthesised so playback can begin before the
// whole answer has been rendered.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/oculus/pkg/audio"
)

// OutputFormat is the PCM format every provider emits: 16-bit signed
// little-endian mono at 24 kHz.
var OutputFormat = audio.Format{SampleRate: 24000, Channels: 1}

// Chunk is one piece of synthesised audio. A chunk with a non-nil Err is
// always the last one on its channel.
type Chunk struct {
	// PCM is 16-bit signed little-endian audio in OutputFormat. Its length
	// is always a whole number of samples.
	PCM []byte

	// Err reports a failure after the stream started.
	Err error
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream starts synthesising text with voice and returns a
	// channel of PCM chunks in playback order. The channel is closed when
	// synthesis completes, fails (after a final Chunk carrying Err) or ctx is
	// cancelled. The caller must drain the channel.
	//
	// A non-nil error is returned only if the stream could not be started.
	SynthesizeStream(ctx context.Context, text string, voice Voice) (<-chan Chunk, error)

	// ListVoices returns the voices available from this provider.
	ListVoices(ctx context.Context) ([]Voice, error)
}
