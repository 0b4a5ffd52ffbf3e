package main

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/oculus/internal/app"
	"github.com/MrWong99/oculus/internal/config"
	"github.com/MrWong99/oculus/internal/resilience"
	"github.com/MrWong99/oculus/pkg/audio"
	"github.com/MrWong99/oculus/pkg/audio/portaudio"
	"github.com/MrWong99/oculus/pkg/provider/llm"
	"github.com/MrWong99/oculus/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/oculus/pkg/provider/llm/openai"
	"github.com/MrWong99/oculus/pkg/provider/stt"
	oaistt "github.com/MrWong99/oculus/pkg/provider/stt/openai"
	"github.com/MrWong99/oculus/pkg/provider/stt/whisper"
	"github.com/MrWong99/oculus/pkg/provider/tts"
	"github.com/MrWong99/oculus/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/oculus/pkg/provider/tts/openai"
	"github.com/MrWong99/oculus/pkg/provider/vad"
	"github.com/MrWong99/oculus/pkg/provider/vad/energy"
	"github.com/MrWong99/oculus/pkg/video"
	"github.com/MrWong99/oculus/pkg/video/ffmpeg"
	"github.com/MrWong99/oculus/pkg/video/gstreamer"
)

// builtinProviders lists the implementations that ship with oculus. Used for
// startup logging.
var builtinProviders = map[string][]string{
	"llm":   {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":   {"openai", "whisper", "whisper-native"},
	"tts":   {"openai", "elevenlabs"},
	"vad":   {"energy"},
	"video": {"ffmpeg", "gstreamer"},
	"audio": {"portaudio"},
}

// anyLLMBackends are served through any-llm-go. "openai" is served by the
// native client instead.
var anyLLMBackends = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// registerBuiltinProviders wires every built-in factory into reg. Resources
// that need an explicit release at exit are added to owned.
func registerBuiltinProviders(reg *config.Registry, owned *closerList) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptString("organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range anyLLMBackends {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ollama is a local server; it takes an address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.OptString("model_path")
		if modelPath == "" {
			modelPath = entry.Model
		}
		var opts []whisper.NativeOption
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		p, err := whisper.NewNative(modelPath, opts...)
		if err != nil {
			return nil, err
		}
		owned.add(p)
		return p, nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		return oaitts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if ws, api := entry.OptString("ws_base_url"), entry.BaseURL; ws != "" && api != "" {
			opts = append(opts, elevenlabs.WithBaseURLs(ws, api))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("energy", func(config.ListenerConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Camera ────────────────────────────────────────────────────────────────
	reg.RegisterVideo("ffmpeg", func(c config.CaptureConfig) (video.Device, error) {
		return ffmpeg.New(videoConfig(c)), nil
	})
	reg.RegisterVideo("gstreamer", func(c config.CaptureConfig) (video.Device, error) {
		return gstreamer.New(videoConfig(c)), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────
	reg.RegisterAudio("portaudio", func(config.AudioConfig) (audio.Device, error) {
		return portaudio.New()
	})

	for kind, names := range builtinProviders {
		slog.Debug("registered built-in providers", "kind", kind, "names", names)
	}
}

func videoConfig(c config.CaptureConfig) video.Config {
	return video.Config{Device: c.Device, Width: c.Width, Height: c.Height, FPS: c.FPS}
}

// buildProviders instantiates every provider named in cfg. Remote stages with
// fallbacks configured are wrapped in a failover group, each member behind
// its own circuit breaker.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	var (
		p    app.Providers
		errs []error
	)
	fail := func(kind, name string, err error) {
		errs = append(errs, fmt.Errorf("%s provider %q: %w", kind, name, err))
	}
	breaker := func(name string) resilience.BreakerConfig {
		return resilience.BreakerConfig{
			Name:        name,
			MaxFailures: cfg.Breaker.MaxFailures,
			Cooldown:    cfg.Breaker.Cooldown,
		}
	}

	if model, err := reg.CreateLLM(cfg.Providers.LLM); err != nil {
		fail("llm", cfg.Providers.LLM.Name, err)
	} else if len(cfg.Providers.LLMFallbacks) == 0 {
		p.LLM = model
	} else {
		group := resilience.NewLLM(cfg.Providers.LLM.Name, model, breaker(cfg.Providers.LLM.Name))
		for _, fb := range cfg.Providers.LLMFallbacks {
			m, err := reg.CreateLLM(fb)
			if err != nil {
				fail("llm fallback", fb.Name, err)
				continue
			}
			group.Add(fb.Name, m)
		}
		p.LLM = group
	}

	if rec, err := reg.CreateSTT(cfg.Providers.STT); err != nil {
		fail("stt", cfg.Providers.STT.Name, err)
	} else if len(cfg.Providers.STTFallbacks) == 0 {
		p.STT = rec
	} else {
		group := resilience.NewSTT(cfg.Providers.STT.Name, rec, breaker(cfg.Providers.STT.Name))
		for _, fb := range cfg.Providers.STTFallbacks {
			r, err := reg.CreateSTT(fb)
			if err != nil {
				fail("stt fallback", fb.Name, err)
				continue
			}
			group.Add(fb.Name, r)
		}
		p.STT = group
	}

	if synth, err := reg.CreateTTS(cfg.Providers.TTS); err != nil {
		fail("tts", cfg.Providers.TTS.Name, err)
	} else if len(cfg.Providers.TTSFallbacks) == 0 {
		p.TTS = synth
	} else {
		group := resilience.NewTTS(cfg.Providers.TTS.Name, synth, breaker(cfg.Providers.TTS.Name))
		for _, fb := range cfg.Providers.TTSFallbacks {
			s, err := reg.CreateTTS(fb)
			if err != nil {
				fail("tts fallback", fb.Name, err)
				continue
			}
			group.Add(fb.Name, s)
		}
		p.TTS = group
	}

	if engine, err := reg.CreateVAD(cfg.Listener); err != nil {
		fail("vad", cfg.Listener.VAD, err)
	} else {
		p.VAD = engine
	}

	if cam, err := reg.CreateVideo(cfg.Capture); err != nil {
		fail("video", cfg.Capture.Backend, err)
	} else {
		p.Video = cam
	}

	// The audio backend is opened last so nothing leaks when an earlier
	// provider fails.
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	dev, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio provider %q: %w", cfg.Audio.Backend, err)
	}
	p.Audio = dev

	slog.Info("providers ready",
		"llm", cfg.Providers.LLM.Name,
		"stt", cfg.Providers.STT.Name,
		"tts", cfg.Providers.TTS.Name,
		"video", cfg.Capture.Backend,
		"audio", cfg.Audio.Backend,
	)
	return &p, nil
}
