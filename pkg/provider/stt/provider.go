// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider takes one complete, already segmented utterance of 16-bit PCM
// and returns its transcription. Segmentation (voice activity detection,
// phrase boundaries) is the caller's job; see internal/listener.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/MrWong99/oculus/pkg/audio"
)

// ErrUnrecognized is returned when the audio contained no intelligible
// speech, e.g. the backend only produced non-speech markers such as
// "[BLANK_AUDIO]" or "(music)".
var ErrUnrecognized = errors.New("stt: speech not recognized")

// Utterance is one segmented phrase of microphone audio.
type Utterance struct {
	// PCM is 16-bit signed little-endian mono audio.
	PCM []byte

	// SampleRate of PCM in Hz.
	SampleRate int

	// Duration of the audio.
	Duration time.Duration
}

// NewUtterance wraps mono PCM and computes its duration.
func NewUtterance(pcm []byte, sampleRate int) Utterance {
	return Utterance{
		PCM:        pcm,
		SampleRate: sampleRate,
		Duration:   audio.Duration(pcm, sampleRate, 1),
	}
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in u. An empty Transcript with a
	// nil error means the backend heard nothing. ErrUnrecognized (possibly
	// wrapped) means audio was present but not intelligible.
	Transcribe(ctx context.Context, u Utterance) (Transcript, error)
}

// nonSpeech matches bracketed or parenthesised annotations whisper emits for
// sound that is not speech: [BLANK_AUDIO], (music), [ Silence ], *cough* ...
var nonSpeech = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

// Clean normalises raw backend text. Whitespace is collapsed and non-speech
// annotations are removed. If the raw text was non-empty but nothing remains
// after cleaning, Clean returns ErrUnrecognized.
func Clean(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	text := strings.Join(strings.Fields(nonSpeech.ReplaceAllString(raw, " ")), " ")
	if strings.Trim(text, ".,!?-… ") == "" {
		return "", ErrUnrecognized
	}
	return text, nil
}
