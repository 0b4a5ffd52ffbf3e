// Package mock provides a test double for the stt.Provider interface.
//
// Results are consumed in order, one per Transcribe call; once exhausted
// Fallback is returned.
//
// Example:
//
//	p := &mock.Provider{Results: []mock.Result{
//	    {Text: "what color is the sky?"},
//	    {Err: stt.ErrUnrecognized},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/oculus/pkg/provider/stt"
)

// Result is one scripted Transcribe outcome.
type Result struct {
	Text string
	Err  error
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results is consumed in order by Transcribe.
	Results []Result

	// Fallback is returned when Results is exhausted.
	Fallback Result

	// OnTranscribe, when set, is called before the result is returned. It
	// lets tests block or observe the calling goroutine.
	OnTranscribe func(ctx context.Context, u stt.Utterance)

	// Utterances records every utterance passed to Transcribe.
	Utterances []stt.Utterance
}

// Transcribe records u and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, u stt.Utterance) (stt.Transcript, error) {
	p.mu.Lock()
	p.Utterances = append(p.Utterances, u)
	res := p.Fallback
	if len(p.Results) > 0 {
		res = p.Results[0]
		p.Results = p.Results[1:]
	}
	hook := p.OnTranscribe
	p.mu.Unlock()

	if hook != nil {
		hook(ctx, u)
	}
	if res.Err != nil {
		return stt.Transcript{}, res.Err
	}
	return stt.Transcript{Text: res.Text, Duration: u.Duration}, nil
}

// CallCount returns the number of Transcribe calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Utterances)
}

var _ stt.Provider = (*Provider)(nil)
