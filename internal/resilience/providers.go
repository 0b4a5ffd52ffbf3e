package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/oculus/pkg/provider/llm"
	"github.com/MrWong99/oculus/pkg/provider/stt"
	"github.com/MrWong99/oculus/pkg/provider/tts"
)

// LLM implements [llm.Provider] with failover across backends.
type LLM struct{ group *Group[llm.Provider] }

// NewLLM creates an [LLM] with primary as the preferred backend.
func NewLLM(name string, primary llm.Provider, cfg BreakerConfig) *LLM {
	return &LLM{group: NewGroup(name, primary, cfg)}
}

// Add registers a fallback backend.
func (f *LLM) Add(name string, p llm.Provider) { f.group.Add(name, p) }

// Complete sends req to the first healthy backend.
func (f *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities reports the primary's capabilities.
func (f *LLM) Capabilities() llm.ModelCapabilities {
	return f.group.Primary().Capabilities()
}

// STT implements [stt.Provider] with failover across backends.
type STT struct{ group *Group[stt.Provider] }

// NewSTT creates an [STT] with primary as the preferred backend.
func NewSTT(name string, primary stt.Provider, cfg BreakerConfig) *STT {
	return &STT{group: NewGroup(name, primary, cfg)}
}

// Add registers a fallback backend.
func (f *STT) Add(name string, p stt.Provider) { f.group.Add(name, p) }

// Transcribe runs u through the first healthy backend. Unrecognised speech
// is an answer, not a failure, so it is returned without trying fallbacks.
func (f *STT) Transcribe(ctx context.Context, u stt.Utterance) (stt.Transcript, error) {
	return Call(f.group, func(p stt.Provider) (stt.Transcript, error) {
		tr, err := p.Transcribe(ctx, u)
		if errors.Is(err, stt.ErrUnrecognized) {
			return tr, Permanent(err)
		}
		return tr, err
	})
}

// TTS implements [tts.Provider] with failover across backends. Only stream
// setup fails over; errors after the first chunk reach the caller.
type TTS struct{ group *Group[tts.Provider] }

// NewTTS creates a [TTS] with primary as the preferred backend.
func NewTTS(name string, primary tts.Provider, cfg BreakerConfig) *TTS {
	return &TTS{group: NewGroup(name, primary, cfg)}
}

// Add registers a fallback backend.
func (f *TTS) Add(name string, p tts.Provider) { f.group.Add(name, p) }

// SynthesizeStream starts synthesis on the first healthy backend.
func (f *TTS) SynthesizeStream(ctx context.Context, text string, voice tts.Voice) (<-chan tts.Chunk, error) {
	return Call(f.group, func(p tts.Provider) (<-chan tts.Chunk, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// ListVoices lists the voices of the first healthy backend.
func (f *TTS) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return Call(f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}

var (
	_ llm.Provider = (*LLM)(nil)
	_ stt.Provider = (*STT)(nil)
	_ tts.Provider = (*TTS)(nil)
)
