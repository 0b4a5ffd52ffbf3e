package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":     {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":     {"openai", "whisper", "whisper-native"},
	"tts":     {"openai", "elevenlabs"},
	"vad":     {"energy"},
	"capture": {"ffmpeg", "gstreamer"},
	"audio":   {"portaudio"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the environment, fills defaults and validates the result.
// An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} with the environment value. Any other dollar
// sign, such as "$5" in a prompt, is left alone.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

// Default returns a fully defaulted configuration: OpenAI for the model,
// transcription and voice, ffmpeg on the first camera and PortAudio.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field with its default.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.Server.ServiceName, "oculus")

	defaultOpenAI(&cfg.Providers.LLM, "gpt-4o")
	defaultOpenAI(&cfg.Providers.STT, "whisper-1")
	defaultOpenAI(&cfg.Providers.TTS, "tts-1")

	setDefault(&cfg.Capture.Backend, "ffmpeg")
	setDefault(&cfg.Capture.Device, "0")
	setDefault(&cfg.Capture.FirstFrameTimeout, 10*time.Second)
	setDefault(&cfg.Capture.RetryBackoff, 10*time.Millisecond)

	setDefault(&cfg.Audio.Backend, "portaudio")
	setDefault(&cfg.Audio.InputSampleRate, 16000)
	setDefault(&cfg.Audio.FramesPerBuffer, 1024)

	setDefault(&cfg.Listener.VAD, "energy")
	setDefault(&cfg.Listener.CalibrationDuration, time.Second)
	setDefault(&cfg.Listener.EnergyThreshold, 300)
	if cfg.Listener.DynamicEnergy == nil {
		on := true
		cfg.Listener.DynamicEnergy = &on
	}
	setDefault(&cfg.Listener.PauseThreshold, 800*time.Millisecond)
	setDefault(&cfg.Listener.MinPhrase, 300*time.Millisecond)
	setDefault(&cfg.Listener.PreRoll, 500*time.Millisecond)

	setDefault(&cfg.Assistant.SystemPrompt, DefaultSystemPrompt)
	setDefault(&cfg.Assistant.Voice.ID, "alloy")

	setDefault(&cfg.Conversation.QueuePolicy, QueueFIFO)
	setDefault(&cfg.Conversation.QueueSize, 8)
	setDefault(&cfg.Conversation.ImageQuality, 85)

	setDefault(&cfg.Retry.MaxAttempts, 1)
	setDefault(&cfg.Retry.Backoff, 500*time.Millisecond)
	setDefault(&cfg.Retry.MaxBackoff, 10*time.Second)

	setDefault(&cfg.Breaker.MaxFailures, 5)
	setDefault(&cfg.Breaker.Cooldown, 30*time.Second)

	setDefault(&cfg.Display.Mode, DisplayTerminal)
	setDefault(&cfg.Display.Columns, 80)
}

// defaultOpenAI selects OpenAI when no provider is named and takes the key
// from OPENAI_API_KEY when none is configured.
func defaultOpenAI(e *ProviderEntry, model string) {
	setDefault(&e.Name, "openai")
	if e.Name != "openai" {
		return
	}
	setDefault(&e.Model, model)
	setDefault(&e.APIKey, os.Getenv("OPENAI_API_KEY"))
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	for _, p := range []struct {
		kind      string
		entry     ProviderEntry
		fallbacks []ProviderEntry
	}{
		{"llm", cfg.Providers.LLM, cfg.Providers.LLMFallbacks},
		{"stt", cfg.Providers.STT, cfg.Providers.STTFallbacks},
		{"tts", cfg.Providers.TTS, cfg.Providers.TTSFallbacks},
	} {
		if p.entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", p.kind))
		}
		validateProviderName(p.kind, p.entry.Name)
		for i, fb := range p.fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s_fallbacks[%d].name is required", p.kind, i))
			}
			validateProviderName(p.kind, fb.Name)
		}
	}
	if cfg.Providers.STT.Name == "whisper" && cfg.Providers.STT.BaseURL == "" {
		errs = append(errs, errors.New("providers.stt.base_url is required for the whisper server provider"))
	}
	if cfg.Providers.STT.Name == "whisper-native" && cfg.Providers.STT.Model == "" && optString(cfg.Providers.STT.Options, "model_path") == "" {
		errs = append(errs, errors.New("providers.stt: whisper-native needs model or options.model_path set to a ggml model file"))
	}

	// Devices
	validateProviderName("capture", cfg.Capture.Backend)
	validateProviderName("audio", cfg.Audio.Backend)
	validateProviderName("vad", cfg.Listener.VAD)
	if cfg.Capture.Width < 0 || cfg.Capture.Height < 0 || cfg.Capture.FPS < 0 {
		errs = append(errs, errors.New("capture.width, capture.height and capture.fps must not be negative"))
	}
	if cfg.Audio.InputSampleRate < 8000 || cfg.Audio.InputSampleRate > 48000 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d is out of range [8000, 48000]", cfg.Audio.InputSampleRate))
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be positive, got %d", cfg.Audio.FramesPerBuffer))
	}

	// Listener
	if cfg.Listener.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("listener.energy_threshold %.1f must not be negative", cfg.Listener.EnergyThreshold))
	}
	if cfg.Listener.PhraseTimeLimit != 0 && cfg.Listener.PhraseTimeLimit < cfg.Listener.MinPhrase {
		errs = append(errs, fmt.Errorf("listener.phrase_time_limit %s is shorter than listener.min_phrase %s", cfg.Listener.PhraseTimeLimit, cfg.Listener.MinPhrase))
	}

	// Assistant
	if v := cfg.Assistant.Voice.Speed; v != 0 && (v < 0.25 || v > 4.0) {
		errs = append(errs, fmt.Errorf("assistant.voice.speed %.2f is out of range [0.25, 4.0]", v))
	}

	// Conversation
	if !cfg.Conversation.QueuePolicy.IsValid() {
		errs = append(errs, fmt.Errorf("conversation.queue_policy %q is invalid; valid values: queue, drop", cfg.Conversation.QueuePolicy))
	}
	if cfg.Conversation.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("conversation.queue_size must be at least 1, got %d", cfg.Conversation.QueueSize))
	}
	if q := cfg.Conversation.ImageQuality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("conversation.image_quality %d is out of range [1, 100]", q))
	}

	// Retry
	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.Backoff < 0 || cfg.Retry.Timeout < 0 {
		errs = append(errs, errors.New("retry.backoff and retry.timeout must not be negative"))
	}

	// Display
	if !cfg.Display.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("display.mode %q is invalid; valid values: terminal, headless", cfg.Display.Mode))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// OptString returns the string option key or "".
func (e ProviderEntry) OptString(key string) string {
	return optString(e.Options, key)
}
