package config_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/oculus/internal/config"
)

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("LoadFromReader(%q): %v", doc, err)
		}
		if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o" {
			t.Errorf("llm default: got %+v", cfg.Providers.LLM)
		}
		if cfg.Providers.STT.Model != "whisper-1" {
			t.Errorf("stt default model: got %q", cfg.Providers.STT.Model)
		}
		if cfg.Providers.TTS.Model != "tts-1" {
			t.Errorf("tts default model: got %q", cfg.Providers.TTS.Model)
		}
		if cfg.Providers.LLM.APIKey != "sk-env" {
			t.Errorf("api key should come from OPENAI_API_KEY, got %q", cfg.Providers.LLM.APIKey)
		}
		if cfg.Assistant.Voice.ID != "alloy" {
			t.Errorf("voice default: got %q, want alloy", cfg.Assistant.Voice.ID)
		}
		if cfg.Assistant.SystemPrompt != config.DefaultSystemPrompt {
			t.Error("system prompt should default to DefaultSystemPrompt")
		}
		if cfg.Conversation.QueuePolicy != config.QueueFIFO {
			t.Errorf("queue policy default: got %q", cfg.Conversation.QueuePolicy)
		}
		if cfg.Listener.PreRoll != 500*time.Millisecond || cfg.Listener.MinPhrase != 300*time.Millisecond {
			t.Errorf("listener defaults: got %+v", cfg.Listener)
		}
		if cfg.Listener.DynamicEnergy == nil || !*cfg.Listener.DynamicEnergy {
			t.Error("dynamic energy should default to true")
		}
		if cfg.Retry.MaxAttempts != 1 || cfg.Retry.Timeout != 0 {
			t.Errorf("retry defaults: got %+v", cfg.Retry)
		}
	}
}

func TestDefault_MatchesEmptyLoad(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := config.Default()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if cfg.Audio.InputSampleRate != 16000 {
		t.Errorf("input sample rate: got %d, want 16000", cfg.Audio.InputSampleRate)
	}
}

func TestDefaults_NonOpenAIKeepsModelEmpty(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  llm:\n    name: ollama\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Providers.LLM.Model != "" || cfg.Providers.LLM.APIKey != "" {
		t.Errorf("non-openai provider should not get openai defaults, got %+v", cfg.Providers.LLM)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("OCULUS_TEST_KEY", "el-secret")
	yaml := `
providers:
  tts:
    name: elevenlabs
    api_key: ${OCULUS_TEST_KEY}
assistant:
  system_prompt: "costs $5, not $HOME or ${not a var}"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.TTS.APIKey != "el-secret" {
		t.Errorf("api_key: got %q, want el-secret", cfg.Providers.TTS.APIKey)
	}
	if want := "costs $5, not $HOME or ${not a var}"; cfg.Assistant.SystemPrompt != want {
		t.Errorf("system_prompt: got %q, want %q", cfg.Assistant.SystemPrompt, want)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: verbose\n", "log_level"},
		{"tls half", "server:\n  tls:\n    cert_file: a.pem\n", "key_file"},
		{"queue policy", "conversation:\n  queue_policy: lifo\n", "queue_policy"},
		{"image quality", "conversation:\n  image_quality: 101\n", "image_quality"},
		{"voice speed", "assistant:\n  voice:\n    speed: 9\n", "voice.speed"},
		{"whisper url", "providers:\n  stt:\n    name: whisper\n", "base_url"},
		{"whisper native model", "providers:\n  stt:\n    name: whisper-native\n", "whisper-native"},
		{"fallback name", "providers:\n  llm_fallbacks:\n    - model: x\n", "llm_fallbacks[0]"},
		{"sample rate", "audio:\n  input_sample_rate: 1000\n", "input_sample_rate"},
		{"display", "display:\n  mode: opengl\n", "display.mode"},
		{"negative size", "capture:\n  width: -1\n", "capture.width"},
		{"phrase limit", "listener:\n  phrase_time_limit: 100ms\n", "phrase_time_limit"},
		{"retry backoff", "retry:\n  backoff: -1s\n", "retry.backoff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	yaml := `
server:
  log_level: loud
display:
  mode: hologram
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "display.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_HandBuiltMissingProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Providers.STT.Name = ""
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "providers.stt.name") {
		t.Fatalf("want providers.stt.name error, got %v", err)
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("providers:\n  llm:\n    name: my-custom-llm\n"))
	if err != nil {
		t.Fatalf("unknown provider names should only warn, got %v", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-example")

	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-example" {
		t.Errorf("llm api_key = %q, want expanded env value", cfg.Providers.LLM.APIKey)
	}
	if cfg.Retry.MaxAttempts != 1 || cfg.Display.Mode != config.DisplayTerminal {
		t.Errorf("retry/display = %d/%q", cfg.Retry.MaxAttempts, cfg.Display.Mode)
	}
}
