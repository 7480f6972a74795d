// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Coqui, ElevenLabs or
// the OpenAI speech endpoint) and renders one utterance at a time into an
// [audio.Segment]. Callers convert the result to their working format; the
// provider reports whatever format the service returned.
//
// Synthesis failures are reported as [*SynthesisError] so callers can degrade
// to silence instead of failing a whole episode.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/castmix/pkg/audio"
)

// ErrEmptyText is wrapped by [SynthesisError] when there is nothing to speak.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice. The returned segment is
	// in the provider's native format. Any failure is a *SynthesisError.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (audio.Segment, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

// SynthesisError reports a failed synthesis request.
type SynthesisError struct {
	// Provider names the backend that failed.
	Provider string

	// Voice is the requested voice ID.
	Voice string

	Err error
}

func (e *SynthesisError) Error() string {
	if e.Voice == "" {
		return fmt.Sprintf("tts: %s: synthesis failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("tts: %s: synthesis with voice %q failed: %v", e.Provider, e.Voice, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Fail wraps err as a *SynthesisError for provider and voice. A nil err
// returns nil.
func Fail(provider string, voice VoiceProfile, err error) error {
	if err == nil {
		return nil
	}
	var se *SynthesisError
	if errors.As(err, &se) {
		return err
	}
	return &SynthesisError{Provider: provider, Voice: voice.ID, Err: err}
}
