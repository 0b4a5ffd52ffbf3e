package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/oculus/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if d.PersonaChanged() || d.LogLevelChanged {
		t.Errorf("expected no hot changes, got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("expected no restart sections, got %v", d.RestartRequired)
	}
}

func TestDiff_EqualButDistinctConfigs(t *testing.T) {
	t.Parallel()
	d := config.Diff(config.Default(), config.Default())
	if len(d.RestartRequired) != 0 {
		t.Errorf("two default configs should not differ, got %v", d.RestartRequired)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_SystemPromptChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Assistant.SystemPrompt = "Answer like a pirate."

	d := config.Diff(old, new)
	if !d.SystemPromptChanged || !d.PersonaChanged() {
		t.Fatal("expected system prompt change")
	}
	if d.NewSystemPrompt != "Answer like a pirate." {
		t.Errorf("NewSystemPrompt: got %q", d.NewSystemPrompt)
	}
	if d.VoiceChanged {
		t.Error("voice did not change")
	}
}

func TestDiff_VoiceChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Assistant.Voice = config.VoiceConfig{ID: "shimmer", Speed: 1.1}

	d := config.Diff(old, new)
	if !d.VoiceChanged {
		t.Fatal("expected VoiceChanged=true")
	}
	if d.NewVoice.ID != "shimmer" {
		t.Errorf("NewVoice.ID: got %q", d.NewVoice.ID)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Capture.Device = "/dev/video1"
	new.Providers.LLM.Options = map[string]any{"temperature": 0.2}
	off := false
	new.Listener.DynamicEnergy = &off

	d := config.Diff(old, new)
	for _, want := range []string{"capture", "providers", "listener"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired %v missing %q", d.RestartRequired, want)
		}
	}
	if d.PersonaChanged() {
		t.Error("persona did not change")
	}
}

func TestDiff_TelemetryResourceNeedsRestart(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.ResourceAttributes = map[string]string{"deployment.environment": "kitchen"}

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "server") {
		t.Errorf("RestartRequired %v missing server", d.RestartRequired)
	}
	if old.Server.ServiceName != "oculus" {
		t.Errorf("default service name = %q, want oculus", old.Server.ServiceName)
	}
}
