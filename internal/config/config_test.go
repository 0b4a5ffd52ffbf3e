package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/oculus/internal/config"
	"github.com/MrWong99/oculus/pkg/audio"
	audiomock "github.com/MrWong99/oculus/pkg/audio/mock"
	"github.com/MrWong99/oculus/pkg/provider/llm"
	llmmock "github.com/MrWong99/oculus/pkg/provider/llm/mock"
	"github.com/MrWong99/oculus/pkg/provider/stt"
	sttmock "github.com/MrWong99/oculus/pkg/provider/stt/mock"
	"github.com/MrWong99/oculus/pkg/provider/tts"
	ttsmock "github.com/MrWong99/oculus/pkg/provider/tts/mock"
	"github.com/MrWong99/oculus/pkg/provider/vad"
	vadmock "github.com/MrWong99/oculus/pkg/provider/vad/mock"
	"github.com/MrWong99/oculus/pkg/video"
	videomock "github.com/MrWong99/oculus/pkg/video/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

providers:
  llm:
    name: gemini
    api_key: gm-test
    model: gemini-1.5-flash-latest
  llm_fallbacks:
    - name: openai
      api_key: sk-test
      model: gpt-4o
  stt:
    name: whisper
    base_url: http://localhost:8081
    options:
      language: en
  tts:
    name: openai
    api_key: sk-test
    model: tts-1

capture:
  backend: gstreamer
  device: /dev/video2
  width: 640
  height: 480
  fps: 15

listener:
  calibration_duration: 2s
  energy_threshold: 450
  dynamic_energy: false
  pause_threshold: 1s

assistant:
  system_prompt: You describe what you see in one sentence.
  voice:
    id: nova
    speed: 1.25

conversation:
  queue_policy: drop

retry:
  max_attempts: 3
  backoff: 250ms
  timeout: 20s

display:
  mode: headless
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Providers.LLM.Name != "gemini" || cfg.Providers.LLM.Model != "gemini-1.5-flash-latest" {
		t.Errorf("providers.llm: got %+v", cfg.Providers.LLM)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "openai" {
		t.Errorf("providers.llm_fallbacks: got %+v", cfg.Providers.LLMFallbacks)
	}
	if got := cfg.Providers.STT.OptString("language"); got != "en" {
		t.Errorf("providers.stt.options.language: got %q, want %q", got, "en")
	}
	if cfg.Capture.Backend != "gstreamer" || cfg.Capture.Width != 640 || cfg.Capture.FPS != 15 {
		t.Errorf("capture: got %+v", cfg.Capture)
	}
	if cfg.Listener.CalibrationDuration != 2*time.Second {
		t.Errorf("listener.calibration_duration: got %s, want 2s", cfg.Listener.CalibrationDuration)
	}
	if cfg.Listener.DynamicEnergy == nil || *cfg.Listener.DynamicEnergy {
		t.Error("listener.dynamic_energy: want explicit false to survive defaults")
	}
	if cfg.Assistant.Voice != (config.VoiceConfig{ID: "nova", Speed: 1.25}) {
		t.Errorf("assistant.voice: got %+v", cfg.Assistant.Voice)
	}
	if cfg.Conversation.QueuePolicy != config.QueueDrop {
		t.Errorf("conversation.queue_policy: got %q, want drop", cfg.Conversation.QueuePolicy)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.Backoff != 250*time.Millisecond || cfg.Retry.Timeout != 20*time.Second {
		t.Errorf("retry: got %+v", cfg.Retry)
	}
	if cfg.Display.Mode != config.DisplayHeadless {
		t.Errorf("display.mode: got %q, want headless", cfg.Display.Mode)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("assistant:\n  personality: grumpy\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/oculus.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

func TestRegistry_CreateLLM(t *testing.T) {
	reg := config.NewRegistry()
	var got config.ProviderEntry
	want := &llmmock.Provider{}
	reg.RegisterLLM("test", func(e config.ProviderEntry) (llm.Provider, error) {
		got = e
		return want, nil
	})

	entry := config.ProviderEntry{Name: "test", Model: "m", APIKey: "k"}
	p, err := reg.CreateLLM(entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != want {
		t.Error("CreateLLM returned a different provider")
	}
	if got.Model != "m" || got.APIKey != "k" {
		t.Errorf("factory received %+v", got)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	reg := config.NewRegistry()

	checks := []struct {
		name string
		fn   func() error
	}{
		{"llm", func() error { _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); return err }},
		{"stt", func() error { _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); return err }},
		{"tts", func() error { _, err := reg.CreateTTS(config.ProviderEntry{Name: "nope"}); return err }},
		{"vad", func() error { _, err := reg.CreateVAD(config.ListenerConfig{VAD: "nope"}); return err }},
		{"video", func() error { _, err := reg.CreateVideo(config.CaptureConfig{Backend: "nope"}); return err }},
		{"audio", func() error { _, err := reg.CreateAudio(config.AudioConfig{Backend: "nope"}); return err }},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			err := c.fn()
			if !errors.Is(err, config.ErrProviderNotRegistered) {
				t.Fatalf("want ErrProviderNotRegistered, got %v", err)
			}
			if !strings.Contains(err.Error(), "nope") {
				t.Errorf("error should name the provider, got %v", err)
			}
		})
	}
}

func TestRegistry_AllKinds(t *testing.T) {
	reg := config.NewRegistry()
	reg.RegisterSTT("s", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	reg.RegisterTTS("t", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })
	reg.RegisterVAD("v", func(config.ListenerConfig) (vad.Engine, error) { return &vadmock.Engine{}, nil })
	reg.RegisterVideo("cam", func(c config.CaptureConfig) (video.Device, error) {
		if c.Device != "/dev/video9" {
			t.Errorf("video factory got device %q", c.Device)
		}
		return &videomock.Device{}, nil
	})
	reg.RegisterAudio("snd", func(config.AudioConfig) (audio.Device, error) { return &audiomock.Device{}, nil })

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "s"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "t"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
	if _, err := reg.CreateVAD(config.ListenerConfig{VAD: "v"}); err != nil {
		t.Errorf("CreateVAD: %v", err)
	}
	if _, err := reg.CreateVideo(config.CaptureConfig{Backend: "cam", Device: "/dev/video9"}); err != nil {
		t.Errorf("CreateVideo: %v", err)
	}
	if _, err := reg.CreateAudio(config.AudioConfig{Backend: "snd"}); err != nil {
		t.Errorf("CreateAudio: %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterTTS("bad", func(config.ProviderEntry) (tts.Provider, error) { return nil, boom })
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Fatalf("want factory error, got %v", err)
	}
}

func TestRegistry_Overwrite(t *testing.T) {
	reg := config.NewRegistry()
	first := &llmmock.Provider{}
	second := &llmmock.Provider{}
	reg.RegisterLLM("x", func(config.ProviderEntry) (llm.Provider, error) { return first, nil })
	reg.RegisterLLM("x", func(config.ProviderEntry) (llm.Provider, error) { return second, nil })
	p, err := reg.CreateLLM(config.ProviderEntry{Name: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if p != second {
		t.Error("second registration should win")
	}
}
