package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/castmix/pkg/timeline"
)

// ValidProviderNames lists the built-in provider names per kind. [Validate]
// warns about names outside these lists; they may be third-party factories.
var ValidProviderNames = map[string][]string{
	"tts": {"coqui", "elevenlabs", "openai"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper"},
}

// Load reads the YAML file at path and returns a defaulted, validated
// [Config].
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

// LoadFromReader decodes YAML from r, applies defaults and validates. Unknown
// keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
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

// Validate checks that cfg is coherent. It returns every problem found,
// joined. Call it after [ApplyDefaults].
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !cfg.LogLevel.IsValid() {
		add("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel)
	}

	// Audio
	if err := cfg.Audio.Format().Validate(); err != nil {
		add("audio: %w", err)
	}
	if cfg.Audio.MaxBufferBytes < 0 {
		add("audio.max_buffer_bytes %d must not be negative", cfg.Audio.MaxBufferBytes)
	}
	if cfg.Audio.InitialBufferMs < 0 {
		add("audio.initial_buffer_ms %d must not be negative", cfg.Audio.InitialBufferMs)
	}
	if cfg.Audio.PeakDBFS() > 0 {
		add("audio.master_peak_dbfs %.2f must be at most 0", cfg.Audio.PeakDBFS())
	}
	if cfg.Audio.TTSFallbackMs < 0 {
		add("audio.tts_fallback_ms %d must not be negative", cfg.Audio.TTSFallbackMs)
	}

	// Media
	for i, ext := range cfg.Media.Extensions {
		if !strings.HasPrefix(ext, ".") {
			add("media.extensions[%d] %q must start with a dot", i, ext)
		}
	}

	errs = append(errs, validateCleanup(&cfg.Cleanup)...)

	// Providers
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for i, fb := range cfg.Providers.TTSFallbacks {
		if fb.Name == "" {
			add("providers.tts_fallbacks[%d].name is required", i)
		}
		validateProviderName("tts", fb.Name)
	}
	if len(cfg.Providers.TTSFallbacks) > 0 && cfg.Providers.TTS.Name == "" {
		add("providers.tts_fallbacks requires providers.tts")
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	if v := cfg.Cleanup.Intern.Voice.Provider; v != "" && !ttsConfigured(cfg, v) {
		add("cleanup.intern.voice.provider %q is not configured under providers.tts or tts_fallbacks", v)
	}
	cb := cfg.Providers.CircuitBreaker
	if cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeoutS < 0 {
		add("providers.circuit_breaker values must not be negative")
	}

	// Queue
	if cfg.Queue.Concurrency < 1 {
		add("queue.concurrency %d must be at least 1", cfg.Queue.Concurrency)
	}
	if cfg.Queue.RedisDB < 0 {
		add("queue.redis_db %d must not be negative", cfg.Queue.RedisDB)
	}

	// Telemetry
	if r := cfg.Telemetry.SampleRatio(); r < 0 || r > 1 {
		add("telemetry.trace_sample_ratio %.2f must be within [0, 1]", r)
	}

	return errors.Join(errs...)
}

func validateCleanup(c *CleanupConfig) []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	for i, f := range c.Fillers {
		if len(timeline.Tokens(f)) == 0 {
			add("cleanup.fillers[%d] %q has no matchable words", i, f)
		}
	}

	fl := c.Flubber
	if !fl.Disabled && len(timeline.Tokens(fl.Keyword)) == 0 {
		add("cleanup.flubber.keyword %q has no matchable words", fl.Keyword)
	}
	if fl.MaxLookbackWords < 0 {
		add("cleanup.flubber.max_lookback_words %d must not be negative", fl.MaxLookbackWords)
	}
	if fl.RestartPauseS < 0 {
		add("cleanup.flubber.restart_pause_s %.2f must not be negative", fl.RestartPauseS)
	}

	in := c.Intern
	if !in.Disabled && len(timeline.Tokens(in.Keyword)) == 0 {
		add("cleanup.intern.keyword %q has no matchable words", in.Keyword)
	}
	if in.MaxInstructionWords < 1 {
		add("cleanup.intern.max_instruction_words %d must be at least 1", in.MaxInstructionWords)
	}
	for name, v := range map[string]int64{
		"insert_pad_ms":         in.InsertPadMs,
		"add_silence_before_ms": in.AddSilenceBeforeMs,
		"add_silence_after_ms":  in.AddSilenceAfterMs,
		"fallback_silence_ms":   in.FallbackSilenceMs,
	} {
		if v < 0 {
			add("cleanup.intern.%s %d must not be negative", name, v)
		}
	}
	if in.CutInstructionAudio && !in.StripInstructionText {
		add("cleanup.intern.cut_instruction_audio requires strip_instruction_text")
	}
	if sf := in.Voice.SpeedFactor; sf != 0 && (sf < 0.5 || sf > 2.0) {
		add("cleanup.intern.voice.speed_factor %.2f is out of range [0.5, 2.0]", sf)
	}

	if !fl.Disabled && !in.Disabled && slices.Equal(timeline.Tokens(fl.Keyword), timeline.Tokens(in.Keyword)) {
		add("cleanup.flubber.keyword and cleanup.intern.keyword must differ")
	}

	phrases := make(map[string]int, len(c.SFX))
	for i, e := range c.SFX {
		prefix := fmt.Sprintf("cleanup.sfx[%d]", i)
		if e.Clip == "" {
			add("%s.clip is required", prefix)
		}
		for _, p := range append([]string{e.Phrase}, e.Aliases...) {
			key := strings.Join(timeline.Tokens(p), " ")
			if key == "" {
				add("%s: phrase %q has no matchable words", prefix, p)
				continue
			}
			if prev, ok := phrases[key]; ok && prev != i {
				add("%s: phrase %q duplicates cleanup.sfx[%d]", prefix, p, prev)
			}
			phrases[key] = i
		}
	}

	s := c.Silence
	if s.Enabled {
		if s.TargetPauseS < 0 || s.TargetPauseS > s.MaxPauseS {
			add("cleanup.silence.target_pause_s %.2f must be within [0, max_pause_s %.2f]", s.TargetPauseS, s.MaxPauseS)
		}
		if s.Ratio <= 0 || s.Ratio > 1 {
			add("cleanup.silence.ratio %.2f must be within (0, 1]", s.Ratio)
		}
		if s.RemovalGuardPct <= 0 || s.RemovalGuardPct > 100 {
			add("cleanup.silence.removal_guard_pct %.2f must be within (0, 100]", s.RemovalGuardPct)
		}
		if s.SimilarityGuard < 0 || s.SimilarityGuard > 1 {
			add("cleanup.silence.similarity_guard %.2f must be within [0, 1]", s.SimilarityGuard)
		}
		if s.SilenceRMS < 0 {
			add("cleanup.silence.silence_rms %.2f must not be negative", s.SilenceRMS)
		}
	}
	return errs
}

func ttsConfigured(cfg *Config, name string) bool {
	if cfg.Providers.TTS.Name == name {
		return true
	}
	for _, fb := range cfg.Providers.TTSFallbacks {
		if fb.Name == name {
			return true
		}
	}
	return false
}

// validateProviderName logs a warning if name is not a built-in provider of
// kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
