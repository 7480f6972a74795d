// Package config provides the configuration schema, loader, provider registry
// and file watcher for castmix.
//
// A config file is YAML. Every section has documented defaults that
// [ApplyDefaults] fills in, so a minimal file only needs the providers it
// uses. Sections with optional behavior use explicit fields rather than
// presence checks scattered through the pipeline; [Validate] is the single
// place that rejects incoherent values.
package config

import (
	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/audio/mixer"
)

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

// Config is the root configuration structure. Load it with [Load] or
// [LoadFromReader].
type Config struct {
	LogLevel  LogLevel        `yaml:"log_level"`
	Audio     AudioConfig     `yaml:"audio"`
	Media     MediaConfig     `yaml:"media"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Providers ProvidersConfig `yaml:"providers"`
	Queue     QueueConfig     `yaml:"queue"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AudioConfig fixes the output format and the mix buffer budget.
type AudioConfig struct {
	// FrameRate, Channels and SampleWidth (bytes) describe the master format.
	// Default: 44100 Hz stereo 16-bit.
	FrameRate   int `yaml:"frame_rate"`
	Channels    int `yaml:"channels"`
	SampleWidth int `yaml:"sample_width"`

	// MaxBufferBytes is the mix buffer ceiling. Default: 2 GiB.
	MaxBufferBytes int64 `yaml:"max_buffer_bytes"`

	// InitialBufferMs is the minimum buffer capacity allocated up front.
	InitialBufferMs int64 `yaml:"initial_buffer_ms"`

	// MasterPeakDBFS is the peak level of the mastered mix. Nil means -1 dBFS.
	MasterPeakDBFS *float64 `yaml:"master_peak_dbfs"`

	// SkipMastering disables peak normalization of the final mix.
	SkipMastering bool `yaml:"skip_mastering"`

	// TTSFallbackMs is the silence inserted for template tts segments that
	// are empty or fail to synthesize. Default: 500.
	TTSFallbackMs int64 `yaml:"tts_fallback_ms"`
}

// Format returns the master PCM format.
func (a AudioConfig) Format() audio.Format {
	return audio.Format{SampleRate: a.FrameRate, Channels: a.Channels, SampleWidth: a.SampleWidth}
}

// Policy returns the mix buffer policy for the master format.
func (a AudioConfig) Policy() mixer.Policy {
	return mixer.Policy{
		CeilingBytes:  a.MaxBufferBytes,
		InitialFrames: a.Format().FramesForMs(a.InitialBufferMs),
	}
}

// PeakDBFS returns the mastering target.
func (a AudioConfig) PeakDBFS() float64 {
	if a.MasterPeakDBFS == nil {
		return DefaultMasterPeakDBFS
	}
	return *a.MasterPeakDBFS
}

// MediaConfig tells the media resolver where to look for audio.
type MediaConfig struct {
	// Roots are searched in order for logical file names.
	Roots []string `yaml:"roots"`

	// Extensions are tried when a name has none. Default: .wav, .mp3.
	Extensions []string `yaml:"extensions"`

	// Aliases maps a logical name to alternative names tried in order.
	Aliases map[string][]string `yaml:"aliases"`

	// CatalogDSN, when set, enables the PostgreSQL media catalog. It is
	// consulted before the file system roots.
	CatalogDSN string `yaml:"catalog_dsn"`
}

// CleanupConfig configures transcript-driven editing.
type CleanupConfig struct {
	// Fillers lists filler words and phrases to cut.
	Fillers []string `yaml:"fillers"`

	Flubber FlubberConfig `yaml:"flubber"`
	Intern  InternConfig  `yaml:"intern"`

	// SFX maps spoken phrases to sound-effect clips.
	SFX []SFXEntry `yaml:"sfx"`

	Silence SilenceConfig `yaml:"silence"`

	// FuzzyKeywords lets single-word flubber and intern keywords match
	// phonetically similar mis-transcriptions.
	FuzzyKeywords bool `yaml:"fuzzy_keywords"`
}

// FlubberConfig configures the rollback keyword.
type FlubberConfig struct {
	// Disabled turns rollback detection off entirely.
	Disabled bool `yaml:"disabled"`

	// Keyword is the rollback trigger. Default: "flubber".
	Keyword string   `yaml:"keyword"`
	Aliases []string `yaml:"aliases"`

	// MaxLookbackWords bounds the backward search for the restart point.
	// Zero means no explicit rollback configuration: a lookback of
	// [DefaultFlubberLookback] words is used and the rollback is
	// transcript-only.
	MaxLookbackWords int `yaml:"max_lookback_words"`

	// RestartPauseS is the pause length that marks a clause start.
	// Default: 0.75.
	RestartPauseS float64 `yaml:"restart_pause_s"`

	// TranscriptOnly keeps the audio of rolled-back words even with an
	// explicit lookback.
	TranscriptOnly bool `yaml:"transcript_only"`
}

// Explicit reports whether a rollback configuration was supplied.
func (f FlubberConfig) Explicit() bool { return f.MaxLookbackWords > 0 }

// Lookback returns the effective lookback in words.
func (f FlubberConfig) Lookback() int {
	if f.Explicit() {
		return f.MaxLookbackWords
	}
	return DefaultFlubberLookback
}

// InternConfig configures spoken voice commands.
type InternConfig struct {
	Disabled bool `yaml:"disabled"`

	// Keyword starts an instruction. Default: "intern".
	Keyword string   `yaml:"keyword"`
	Aliases []string `yaml:"aliases"`

	// EndMarkers close an instruction. Without a marker the instruction runs
	// to the first sentence-final word, capped at MaxInstructionWords.
	EndMarkers []string `yaml:"end_markers"`

	// MaxInstructionWords caps an unterminated instruction. Default: 40.
	MaxInstructionWords int `yaml:"max_instruction_words"`

	InsertPadMs        int64 `yaml:"insert_pad_ms"`
	AddSilenceBeforeMs int64 `yaml:"add_silence_before_ms"`
	AddSilenceAfterMs  int64 `yaml:"add_silence_after_ms"`

	// FallbackSilenceMs replaces a response that could not be produced.
	// Default: 1000.
	FallbackSilenceMs int64 `yaml:"fallback_silence_ms"`

	// StripInstructionText hides the keyword and instruction from the edited
	// transcript. CutInstructionAudio also removes their audio.
	StripInstructionText bool `yaml:"strip_instruction_text"`
	CutInstructionAudio  bool `yaml:"cut_instruction_audio"`

	// Voice is used for synthesized responses.
	Voice VoiceConfig `yaml:"voice"`

	// SystemPrompt is sent to the LLM when answering instructions. When no
	// LLM is configured the instruction text itself is spoken.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxResponseTokens caps LLM answers. Default: 200.
	MaxResponseTokens int `yaml:"max_response_tokens"`
}

// VoiceConfig selects a synthesis voice.
type VoiceConfig struct {
	// Provider names the TTS backend the voice belongs to. Empty means the
	// primary backend.
	Provider string `yaml:"provider"`

	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// SpeedFactor adjusts speaking rate in [0.5, 2.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// SFXEntry maps a spoken phrase to a clip.
type SFXEntry struct {
	Phrase  string   `yaml:"phrase"`
	Aliases []string `yaml:"aliases"`

	// Clip is the logical media name of the effect.
	Clip string `yaml:"clip"`

	GainDB float64 `yaml:"gain_db"`
}

// SilenceConfig configures pause compression.
type SilenceConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxPauseS is the shortest pause that is compressed. Default: 1.5.
	MaxPauseS float64 `yaml:"max_pause_s"`

	// TargetPauseS is the length a compressed pause is shortened toward.
	// Default: 0.6.
	TargetPauseS float64 `yaml:"target_pause_s"`

	// Ratio is the fraction of the excess removed when full compression would
	// break the removal guard. Default: 0.5.
	Ratio float64 `yaml:"ratio"`

	// RemovalGuardPct caps the total removed audio as a percentage of the
	// take duration. Default: 10.
	RemovalGuardPct float64 `yaml:"removal_guard_pct"`

	// SimilarityGuard is the fraction of analysis windows in a gap that must
	// be quiet for the gap to count as silence. Default: 0.9.
	SimilarityGuard float64 `yaml:"similarity_guard"`

	// SilenceRMS is the RMS level, in 16-bit units, at or below which an
	// analysis window is quiet. Default: 300.
	SilenceRMS float64 `yaml:"silence_rms"`

	// RetimeWords shifts word timings after compression. Nil means true.
	RetimeWords *bool `yaml:"retime_words"`
}

// Retime reports whether compressed pauses retime the words.
func (s SilenceConfig) Retime() bool { return s.RetimeWords == nil || *s.RetimeWords }

// ProvidersConfig declares the external clients. Each entry selects a named
// factory registered in the [Registry].
type ProvidersConfig struct {
	TTS ProviderEntry `yaml:"tts"`

	// TTSFallbacks are tried in order when the primary TTS fails.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`

	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`

	// CircuitBreaker tunes the breaker placed in front of every provider.
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "elevenlabs").
	Name string `yaml:"name"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Voice is the default voice of a TTS entry, used when a request falls
	// back from a voice of another provider.
	Voice string `yaml:"voice"`

	// Options holds provider-specific values.
	Options map[string]any `yaml:"options"`
}

// BreakerConfig mirrors the circuit breaker knobs. Zero values take the
// breaker defaults.
type BreakerConfig struct {
	MaxFailures   int     `yaml:"max_failures"`
	ResetTimeoutS float64 `yaml:"reset_timeout_s"`
	HalfOpenMax   int     `yaml:"half_open_max"`
}

// QueueConfig configures the episode worker.
type QueueConfig struct {
	// RedisAddr is the asynq broker. Default: "localhost:6379".
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Concurrency is the number of episodes processed at once. Default: 2.
	Concurrency int `yaml:"concurrency"`

	// HealthAddr serves /healthz and /readyz. Default: ":8081".
	HealthAddr string `yaml:"health_addr"`

	// OutputRoot is where worker runs export their results. Default: "out".
	OutputRoot string `yaml:"output_root"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	// ServiceName is reported on every metric and span. Default: "castmix".
	ServiceName string `yaml:"service_name"`

	// MetricsAddr serves the Prometheus /metrics endpoint. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// TraceSampleRatio is the share of root traces sampled, in [0, 1].
	// Nil means every trace.
	TraceSampleRatio *float64 `yaml:"trace_sample_ratio"`

	// LogSpans writes every finished sampled span to the debug log.
	LogSpans bool `yaml:"log_spans"`
}

// SampleRatio returns the effective trace sample ratio.
func (t TelemetryConfig) SampleRatio() float64 {
	if t.TraceSampleRatio == nil {
		return 1
	}
	return *t.TraceSampleRatio
}
