package tts

// VoiceProfile describes a TTS voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable voice name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Provider identifies which TTS provider this voice belongs to. Empty means
	// the configured primary provider.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// SpeedFactor adjusts speaking rate in [0.5, 2.0]. Zero means the
	// provider default.
	SpeedFactor float64 `yaml:"speed,omitempty" json:"speed,omitempty"`

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}
