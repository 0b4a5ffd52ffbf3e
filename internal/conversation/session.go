package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/oculus/pkg/provider/tts"
)

// Session is the state of one assistant run: the persona and the history.
// There is exactly one per process, created by the application and passed
// to the [Pipeline].
//
// The persona can be swapped while the session is live (config hot reload);
// a question already in flight keeps the persona it started with.
type Session struct {
	// ID identifies the run in logs.
	ID string

	// StartedAt is when the session was created.
	StartedAt time.Time

	// History holds the answered questions.
	History *History

	mu           sync.RWMutex
	systemPrompt string
	voice        tts.Voice
}

// NewSession returns an empty session with the given persona.
func NewSession(systemPrompt string, voice tts.Voice) *Session {
	return &Session{
		ID:           uuid.NewString(),
		StartedAt:    time.Now(),
		History:      &History{},
		systemPrompt: systemPrompt,
		voice:        voice,
	}
}

// SystemPrompt returns the current system prompt.
func (s *Session) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemPrompt
}

// SetSystemPrompt replaces the system prompt for subsequent questions.
func (s *Session) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemPrompt = prompt
}

// Voice returns the current voice.
func (s *Session) Voice() tts.Voice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voice
}

// SetVoice replaces the voice for subsequent answers.
func (s *Session) SetVoice(v tts.Voice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice = v
}
