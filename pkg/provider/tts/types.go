package tts

// Voice selects how an answer is spoken.
type Voice struct {
	// ID is the provider-specific voice identifier ("alloy", an ElevenLabs
	// voice_id, ...).
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Speed adjusts speaking rate (0.25–4.0, 0 or 1.0 = default). Providers
	// without rate control ignore it.
	Speed float64
}
