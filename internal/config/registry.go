package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/oculus/pkg/audio"
	"github.com/MrWong99/oculus/pkg/provider/llm"
	"github.com/MrWong99/oculus/pkg/provider/stt"
	"github.com/MrWong99/oculus/pkg/provider/tts"
	"github.com/MrWong99/oculus/pkg/provider/vad"
	"github.com/MrWong99/oculus/pkg/video"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	llm   map[string]func(ProviderEntry) (llm.Provider, error)
	stt   map[string]func(ProviderEntry) (stt.Provider, error)
	tts   map[string]func(ProviderEntry) (tts.Provider, error)
	vad   map[string]func(ListenerConfig) (vad.Engine, error)
	video map[string]func(CaptureConfig) (video.Device, error)
	audio map[string]func(AudioConfig) (audio.Device, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:   make(map[string]func(ProviderEntry) (llm.Provider, error)),
		stt:   make(map[string]func(ProviderEntry) (stt.Provider, error)),
		tts:   make(map[string]func(ProviderEntry) (tts.Provider, error)),
		vad:   make(map[string]func(ListenerConfig) (vad.Engine, error)),
		video: make(map[string]func(CaptureConfig) (video.Device, error)),
		audio: make(map[string]func(AudioConfig) (audio.Device, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	register(r, r.llm, name, factory)
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	register(r, r.stt, name, factory)
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	register(r, r.tts, name, factory)
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ListenerConfig) (vad.Engine, error)) {
	register(r, r.vad, name, factory)
}

// RegisterVideo registers a camera backend factory under name.
func (r *Registry) RegisterVideo(name string, factory func(CaptureConfig) (video.Device, error)) {
	register(r, r.video, name, factory)
}

// RegisterAudio registers an audio backend factory under name.
func (r *Registry) RegisterAudio(name string, factory func(AudioConfig) (audio.Device, error)) {
	register(r, r.audio, name, factory)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry.Name, entry)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(r, r.stt, "stt", entry.Name, entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry.Name, entry)
}

// CreateVAD instantiates the VAD engine named by cfg.VAD.
func (r *Registry) CreateVAD(cfg ListenerConfig) (vad.Engine, error) {
	return create(r, r.vad, "vad", cfg.VAD, cfg)
}

// CreateVideo instantiates the camera backend named by cfg.Backend.
func (r *Registry) CreateVideo(cfg CaptureConfig) (video.Device, error) {
	return create(r, r.video, "capture", cfg.Backend, cfg)
}

// CreateAudio instantiates the audio backend named by cfg.Backend.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Device, error) {
	return create(r, r.audio, "audio", cfg.Backend, cfg)
}

func register[C, P any](r *Registry, m map[string]func(C) (P, error), name string, factory func(C) (P, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[name] = factory
}

func create[C, P any](r *Registry, m map[string]func(C) (P, error), kind, name string, cfg C) (P, error) {
	r.mu.RLock()
	factory, ok := m[name]
	r.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, name)
	}
	return factory(cfg)
}
