// Package mock provides a test double for the conversation.Speaker interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/oculus/internal/conversation"
	"github.com/MrWong99/oculus/pkg/provider/tts"
)

// SpeakCall records a single invocation of Speak.
type SpeakCall struct {
	Text  string
	Voice tts.Voice
}

// Speaker is a mock implementation of conversation.Speaker.
type Speaker struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by Speak.
	Err error

	// OnSpeak, if set, runs before Speak returns, with no lock held. Use it
	// to block or to observe ordering.
	OnSpeak func(ctx context.Context, text string)

	calls []SpeakCall
}

// Speak records the call and returns Err.
func (s *Speaker) Speak(ctx context.Context, text string, voice tts.Voice) error {
	s.mu.Lock()
	s.calls = append(s.calls, SpeakCall{Text: text, Voice: voice})
	hook, err := s.OnSpeak, s.Err
	s.mu.Unlock()

	if hook != nil {
		hook(ctx, text)
	}
	return err
}

// Calls returns a copy of the recorded calls.
func (s *Speaker) Calls() []SpeakCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SpeakCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// Texts returns the text of every Speak call.
func (s *Speaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Text
	}
	return out
}

var _ conversation.Speaker = (*Speaker)(nil)
