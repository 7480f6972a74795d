package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] over a chain of synthesis backends.
//
// A voice whose Provider field names an entry is sent to that entry first.
// When a call falls through to another backend, that backend's default voice
// (see [TTSFallback.SetDefaultVoice]) replaces the profile, since voice IDs
// are provider specific.
type TTSFallback struct {
	group    *FallbackGroup[tts.Provider]
	defaults map[string]tts.VoiceProfile
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a chain with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group:    NewFallbackGroup(primary, primaryName, cfg),
		defaults: make(map[string]tts.VoiceProfile),
	}
}

// AddFallback registers another backend.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// SetDefaultVoice sets the voice used on backend name for requests whose
// voice belongs to a different backend.
func (f *TTSFallback) SetDefaultVoice(name string, voice tts.VoiceProfile) {
	voice.Provider = name
	f.defaults[name] = voice
}

// Status reports the breaker state of each backend.
func (f *TTSFallback) Status() []EntryStatus { return f.group.Status() }

// Synthesize renders text on the first healthy backend. Failure of the whole
// chain is reported as a [*tts.SynthesisError] from provider "fallback".
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Segment, error) {
	seg, err := ExecuteNamed(ctx, f.group, voice.Provider, func(name string, p tts.Provider) (audio.Segment, error) {
		return p.Synthesize(ctx, text, f.voiceFor(name, voice))
	})
	if err != nil {
		return audio.Segment{}, &tts.SynthesisError{Provider: "fallback", Voice: voice.ID, Err: err}
	}
	return seg, nil
}

func (f *TTSFallback) voiceFor(name string, voice tts.VoiceProfile) tts.VoiceProfile {
	if voice.Provider == "" || voice.Provider == name {
		return voice
	}
	if d, ok := f.defaults[name]; ok {
		if voice.SpeedFactor != 0 {
			d.SpeedFactor = voice.SpeedFactor
		}
		return d
	}
	return voice
}

// ListVoices returns the voices of every backend that answers, tagged with
// the backend name. It fails only when no backend answers.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	var (
		out  []tts.VoiceProfile
		errs []error
	)
	for _, e := range f.group.entries {
		var voices []tts.VoiceProfile
		err := e.breaker.Execute(func() error {
			var callErr error
			voices, callErr = e.value.ListVoices(ctx)
			return callErr
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
			continue
		}
		for _, v := range voices {
			if v.Provider == "" {
				v.Provider = e.name
			}
			out = append(out, v)
		}
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
	}
	return out, nil
}
