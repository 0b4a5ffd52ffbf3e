// Package config provides the configuration schema, loader, and provider registry
// for the oculus assistant.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// QueuePolicy decides what happens to an utterance that arrives while the
// previous one is still being answered.
type QueuePolicy string

const (
	// QueueFIFO holds utterances in a bounded queue and answers them in order.
	QueueFIFO QueuePolicy = "queue"

	// QueueDrop discards utterances that arrive while a turn is in flight.
	QueueDrop QueuePolicy = "drop"
)

// IsValid reports whether p is a recognised queue policy.
func (p QueuePolicy) IsValid() bool {
	return p == QueueFIFO || p == QueueDrop
}

// DisplayMode selects the preview window implementation.
type DisplayMode string

const (
	DisplayTerminal DisplayMode = "terminal"
	DisplayHeadless DisplayMode = "headless"
)

// IsValid reports whether m is a recognised display mode.
func (m DisplayMode) IsValid() bool {
	return m == DisplayTerminal || m == DisplayHeadless
}

// DefaultSystemPrompt is the persona used when assistant.system_prompt is empty.
const DefaultSystemPrompt = `You are a witty assistant that will use the chat history and the image
provided by the user to answer its questions. Your job is to answer
questions.

Use few words on your answers. Go straight to the point. Do not use any
emoticons or emojis.

Be friendly and helpful. Show some personality.`

// Config is the root configuration structure for oculus.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Capture      CaptureConfig      `yaml:"capture"`
	Audio        AudioConfig        `yaml:"audio"`
	Listener     ListenerConfig     `yaml:"listener"`
	Assistant    AssistantConfig    `yaml:"assistant"`
	Conversation ConversationConfig `yaml:"conversation"`
	Retry        RetryConfig        `yaml:"retry"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Display      DisplayConfig      `yaml:"display"`
}

// ServerConfig holds the diagnostics HTTP server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// ServiceName is the service.name of exported metrics and traces.
	// Default: "oculus".
	ServiceName string `yaml:"service_name"`

	// ResourceAttributes are added to the telemetry resource, e.g. to tell
	// several assistants apart ("deployment.environment": "kitchen").
	ResourceAttributes map[string]string `yaml:"resource_attributes"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// remote stage. Each entry selects a named provider registered in the
// [Registry]. The fallback lists are tried in order when the primary's
// circuit breaker is open or a call fails.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`

	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "gemini").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Values of the form ${VAR} are expanded from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// CaptureConfig selects and configures the camera.
type CaptureConfig struct {
	// Backend is "ffmpeg" or "gstreamer".
	Backend string `yaml:"backend"`

	// Device is the camera path or index ("/dev/video0", "0").
	Device string `yaml:"device"`

	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`

	// FirstFrameTimeout bounds the wait for the first frame at startup.
	FirstFrameTimeout time.Duration `yaml:"first_frame_timeout"`

	// RetryBackoff is the pause after a transient read failure.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// AudioConfig selects the audio backend for microphone and speaker.
type AudioConfig struct {
	// Backend is "portaudio".
	Backend string `yaml:"backend"`

	// InputSampleRate is the microphone capture rate in Hz.
	InputSampleRate int `yaml:"input_sample_rate"`

	// FramesPerBuffer is the microphone buffer size in samples.
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// ListenerConfig tunes utterance segmentation.
type ListenerConfig struct {
	// VAD selects the voice activity detector ("energy").
	VAD string `yaml:"vad"`

	// CalibrationDuration is how long ambient noise is sampled before
	// listening starts.
	CalibrationDuration time.Duration `yaml:"calibration_duration"`

	EnergyThreshold float64 `yaml:"energy_threshold"`
	DynamicEnergy   *bool   `yaml:"dynamic_energy"`

	// PauseThreshold is the silence that ends a phrase.
	PauseThreshold time.Duration `yaml:"pause_threshold"`

	// MinPhrase discards phrases shorter than this.
	MinPhrase time.Duration `yaml:"min_phrase"`

	// PreRoll is the audio kept from before the speech onset.
	PreRoll time.Duration `yaml:"pre_roll"`

	// PhraseTimeLimit cuts off a phrase that runs longer. Zero means no limit.
	PhraseTimeLimit time.Duration `yaml:"phrase_time_limit"`
}

// AssistantConfig is the hot-reloadable persona.
type AssistantConfig struct {
	// SystemPrompt is sent as the system message on every request.
	SystemPrompt string `yaml:"system_prompt"`

	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig specifies the TTS voice parameters.
type VoiceConfig struct {
	// ID is the provider-specific voice identifier (e.g., "alloy").
	ID string `yaml:"id"`

	// Speed adjusts speaking rate in the range [0.25, 4.0]. 0 means default.
	Speed float64 `yaml:"speed"`
}

// ConversationConfig tunes the utterance worker.
type ConversationConfig struct {
	QueuePolicy QueuePolicy `yaml:"queue_policy"`

	// QueueSize bounds the FIFO when QueuePolicy is "queue".
	QueueSize int `yaml:"queue_size"`

	// ImageQuality is the JPEG quality used when raw frames are encoded.
	ImageQuality int `yaml:"image_quality"`

	// Temperature is passed to the model. Zero uses the provider default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the answer length. Zero uses the provider default.
	MaxTokens int `yaml:"max_tokens"`
}

// RetryConfig governs remote calls to STT, LLM and TTS providers.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`

	// Timeout bounds each attempt. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// BreakerConfig governs the per-provider circuit breakers.
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// DisplayConfig selects the preview.
type DisplayConfig struct {
	Mode DisplayMode `yaml:"mode"`

	// Columns is the preview width in terminal cells.
	Columns int `yaml:"columns"`
}
