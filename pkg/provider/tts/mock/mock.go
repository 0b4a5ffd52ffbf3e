// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Chunks: [][]byte{pcm1, pcm2}}
//	ch, _ := p.SynthesizeStream(ctx, "hello", tts.Voice{ID: "alloy"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/oculus/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of SynthesizeStream.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice tts.Voice
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks are emitted in order on every stream.
	Chunks [][]byte

	// StreamErr, if non-nil, is delivered as a final error chunk after Chunks.
	StreamErr error

	// SynthesizeErr, if non-nil, is returned from SynthesizeStream instead of
	// opening a channel.
	SynthesizeErr error

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	// ListVoicesErr is returned by ListVoices.
	ListVoicesErr error

	// Calls records every invocation of SynthesizeStream in order.
	Calls []SynthesizeCall
}

// SynthesizeStream records the call and returns a channel emitting Chunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, voice tts.Voice) (<-chan tts.Chunk, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	streamErr := p.StreamErr
	p.mu.Unlock()

	ch := make(chan tts.Chunk)
	go func() {
		defer close(ch)
		for _, pcm := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- tts.Chunk{PCM: pcm}:
			}
		}
		if streamErr != nil {
			select {
			case <-ctx.Done():
			case ch <- tts.Chunk{Err: streamErr}:
			}
		}
	}()
	return ch, nil
}

// ListVoices returns Voices, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, p.ListVoicesErr
}

// Texts returns the text of every SynthesizeStream call.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}

var _ tts.Provider = (*Provider)(nil)
