package config

import (
	"fmt"
	"maps"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	SystemPromptChanged bool
	NewSystemPrompt     string

	VoiceChanged bool
	NewVoice     VoiceConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists top-level sections that changed but are only
	// read at startup.
	RestartRequired []string
}

// PersonaChanged reports whether the system prompt or the voice changed.
func (d ConfigDiff) PersonaChanged() bool {
	return d.SystemPromptChanged || d.VoiceChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Assistant.SystemPrompt != new.Assistant.SystemPrompt {
		d.SystemPromptChanged = true
		d.NewSystemPrompt = new.Assistant.SystemPrompt
	}
	if old.Assistant.Voice != new.Assistant.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Assistant.Voice
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) ||
		old.Server.ServiceName != new.Server.ServiceName ||
		!maps.Equal(old.Server.ResourceAttributes, new.Server.ResourceAttributes) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameProviders(&old.Providers, &new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Capture != new.Capture {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !sameListener(old.Listener, new.Listener) {
		d.RestartRequired = append(d.RestartRequired, "listener")
	}
	if old.Conversation != new.Conversation {
		d.RestartRequired = append(d.RestartRequired, "conversation")
	}
	if old.Retry != new.Retry || old.Breaker != new.Breaker {
		d.RestartRequired = append(d.RestartRequired, "retry")
	}
	if old.Display != new.Display {
		d.RestartRequired = append(d.RestartRequired, "display")
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameListener(a, b ListenerConfig) bool {
	da, db := a.DynamicEnergy, b.DynamicEnergy
	a.DynamicEnergy, b.DynamicEnergy = nil, nil
	if a != b {
		return false
	}
	if da == nil || db == nil {
		return da == db
	}
	return *da == *db
}

func sameProviders(a, b *ProvidersConfig) bool {
	return sameEntry(a.LLM, b.LLM) && sameEntry(a.STT, b.STT) && sameEntry(a.TTS, b.TTS) &&
		sameEntries(a.LLMFallbacks, b.LLMFallbacks) &&
		sameEntries(a.STTFallbacks, b.STTFallbacks) &&
		sameEntries(a.TTSFallbacks, b.TTSFallbacks)
}

func sameEntries(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameEntry(a[i], b[i]) {
			return false
		}
	}
	return true
}

// sameEntry compares the scalar fields; options are compared by their
// formatted string values.
func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}
