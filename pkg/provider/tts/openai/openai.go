// Package openai provides a TTS provider backed by the OpenAI speech API.
// Audio is requested in the raw "pcm" response format (24 kHz 16-bit mono)
// and streamed to the caller as the HTTP body arrives.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/oculus/pkg/provider/tts"
)

const (
	defaultModel = "tts-1"

	// chunkBytes is 100 ms of OutputFormat audio.
	chunkBytes = 4800
)

// voices are the built-in OpenAI speech voices.
var voices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer", "verse"}

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the speech model ("tts-1", "tts-1-hd",
// "gpt-4o-mini-tts"). Defaults to "tts-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs an OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, voice tts.Voice) (<-chan tts.Chunk, error) {
	if voice.ID == "" {
		return nil, errors.New("openai: voice.ID must not be empty")
	}
	if text == "" {
		return nil, errors.New("openai: text must not be empty")
	}

	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice.ID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.Speed > 0 && voice.Speed != 1 {
		params.Speed = oai.Float(voice.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w", err)
	}

	ch := make(chan tts.Chunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		if err := streamPCM(ctx, resp.Body, ch); err != nil {
			select {
			case ch <- tts.Chunk{Err: fmt.Errorf("openai: read speech: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// streamPCM forwards r to ch in chunkBytes pieces, keeping every chunk
// sample-aligned. An odd trailing byte is dropped.
func streamPCM(ctx context.Context, r io.Reader, ch chan<- tts.Chunk) error {
	buf := make([]byte, chunkBytes)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			even := len(data) &^ 1
			carry = append([]byte(nil), data[even:]...)
			if even > 0 {
				pcm := make([]byte, even)
				copy(pcm, data[:even])
				select {
				case ch <- tts.Chunk{PCM: pcm}:
				case <-ctx.Done():
					return nil
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ListVoices implements tts.Provider. OpenAI has a fixed voice catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, 0, len(voices))
	for _, v := range voices {
		out = append(out, tts.Voice{ID: v, Name: v, Provider: "openai"})
	}
	return out, nil
}

var _ tts.Provider = (*Provider)(nil)
