package stt

import "time"

// Transcript represents a speech-to-text result.
type Transcript struct {
	// Text is the transcribed speech content, already passed through Clean.
	Text string

	// Language is the detected or requested language, when the backend
	// reports it.
	Language string

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}
