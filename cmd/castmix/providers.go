package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/internal/health"
	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/internal/observe"
	"github.com/MrWong99/castmix/internal/pipeline"
	"github.com/MrWong99/castmix/internal/resilience"
	"github.com/MrWong99/castmix/pkg/provider/llm"
	"github.com/MrWong99/castmix/pkg/provider/llm/anyllm"
	"github.com/MrWong99/castmix/pkg/provider/stt"
	"github.com/MrWong99/castmix/pkg/provider/stt/whisper"
	"github.com/MrWong99/castmix/pkg/provider/tts"
	"github.com/MrWong99/castmix/pkg/provider/tts/coqui"
	"github.com/MrWong99/castmix/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/castmix/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires every shipped provider factory into reg.
func registerBuiltinProviders(reg *config.Registry) {
	for _, name := range anyllm.Supported {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout_s"); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if f := optString(entry.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if d := optDuration(entry.Options, "timeout_s"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout_s"); d > 0 {
			opts = append(opts, oaitts.WithTimeout(d))
		}
		return oaitts.New(entry.APIKey, entry.Model, opts...)
	})
}

// providers holds the external clients of a run, each behind a breaker and
// instrumented for metrics.
type providers struct {
	tts     *resilience.TTSFallback
	llm     *resilience.LLMFallback
	stt     *resilience.STTFallback
	media   media.Resolver
	catalog *media.CatalogResolver
}

// buildProviders instantiates every provider named in cfg. An unset entry
// leaves its capability disabled.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*providers, error) {
	fb := fallbackConfig(cfg.Providers.CircuitBreaker, m)
	ps := &providers{}

	if entry := cfg.Providers.TTS; entry.Name != "" {
		primary, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		ps.tts = resilience.NewTTSFallback(observe.InstrumentTTS(primary, entry.Name, m), entry.Name, fb)
		setVoice(ps.tts, entry)
		for _, fe := range cfg.Providers.TTSFallbacks {
			p, err := reg.CreateTTS(fe)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", fe.Name, err)
			}
			ps.tts.AddFallback(fe.Name, observe.InstrumentTTS(p, fe.Name, m))
			setVoice(ps.tts, fe)
		}
		slog.Info("provider created", "kind", "tts", "name", entry.Name, "fallbacks", len(cfg.Providers.TTSFallbacks))
	}

	if entry := cfg.Providers.LLM; entry.Name != "" {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		}
		ps.llm = resilience.NewLLMFallback(observe.InstrumentLLM(p, entry.Name, m), entry.Name, fb)
		slog.Info("provider created", "kind", "llm", "name", entry.Name)
	}

	if entry := cfg.Providers.STT; entry.Name != "" {
		t, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		ps.stt = resilience.NewSTTFallback(observe.InstrumentSTT(t, entry.Name, m), entry.Name, fb)
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
	}

	var chain []media.Resolver
	if dsn := cfg.Media.CatalogDSN; dsn != "" {
		catalog, err := media.NewCatalogResolver(ctx, dsn)
		if err != nil {
			return nil, err
		}
		ps.catalog = catalog
		chain = append(chain, observe.InstrumentMedia(catalog, "catalog", m))
	}
	chain = append(chain, observe.InstrumentMedia(media.NewFileResolver(cfg.Media), "files", m))
	ps.media = media.Chain(chain...)
	return ps, nil
}

func fallbackConfig(bc config.BreakerConfig, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  bc.MaxFailures,
		ResetTimeout: time.Duration(bc.ResetTimeoutS * float64(time.Second)),
		HalfOpenMax:  bc.HalfOpenMax,
		OnStateChange: func(name string, from, to resilience.State) {
			m.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
		},
	}}
}

func setVoice(f *resilience.TTSFallback, entry config.ProviderEntry) {
	if entry.Voice != "" {
		f.SetDefaultVoice(entry.Name, tts.VoiceProfile{ID: entry.Voice, Provider: entry.Name})
	}
}

// options returns the pipeline options for the configured providers.
func (ps *providers) options(m *observe.Metrics) []pipeline.Option {
	opts := []pipeline.Option{pipeline.WithMedia(ps.media), pipeline.WithMetrics(m)}
	if ps.tts != nil {
		opts = append(opts, pipeline.WithTTS(ps.tts))
	}
	if ps.llm != nil {
		opts = append(opts, pipeline.WithLLM(ps.llm))
	}
	if ps.stt != nil {
		opts = append(opts, pipeline.WithTranscriber(ps.stt))
	}
	return opts
}

// checkers returns readiness checks for the configured providers.
func (ps *providers) checkers() []health.Checker {
	var out []health.Checker
	if ps.tts != nil {
		out = append(out, health.Providers("tts", ps.tts.Status))
	}
	if ps.llm != nil {
		out = append(out, health.Providers("llm", ps.llm.Status))
	}
	if ps.stt != nil {
		out = append(out, health.Providers("stt", ps.stt.Status))
	}
	if ps.catalog != nil {
		out = append(out, health.Ping("media_catalog", ps.catalog))
	}
	return out
}

func (ps *providers) Close() {
	if ps.catalog != nil {
		ps.catalog.Close()
	}
}

// newPipeline loads providers for cfg and builds a pipeline. The returned
// providers must be closed by the caller.
func newPipeline(ctx context.Context, cfg *config.Config, m *observe.Metrics) (*pipeline.Pipeline, *providers, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	ps, err := buildProviders(ctx, cfg, reg, m)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.New(cfg, ps.options(m)...), ps, nil
}

func optString(opts map[string]any, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

// optDuration reads a number of seconds.
func optDuration(opts map[string]any, key string) time.Duration {
	switch v := opts[key].(type) {
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return 0
}

var errNoTTS = errors.New("no tts provider configured")
