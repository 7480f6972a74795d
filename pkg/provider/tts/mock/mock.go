// Package mock provides a test double for the tts.Provider interface.
//
// With no configuration, Synthesize returns a deterministic tone of
// MsPerWord milliseconds per word, so pipelines that synthesize the same text
// produce byte-identical audio.
//
// Example:
//
//	p := &mock.Provider{SynthesizeErr: errors.New("quota")}
//	_, err := p.Synthesize(ctx, "hello", voice) // *tts.SynthesisError
package mock

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/provider/tts"
)

// Format is the PCM format of generated audio.
var Format = audio.Format{SampleRate: 16000, Channels: 1, SampleWidth: 2}

// DefaultMsPerWord is the generated duration per word.
const DefaultMsPerWord = 100

// Level is the constant sample value of generated audio.
const Level = 1000

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Name is reported in synthesis errors. Defaults to "mock".
	Name string

	// SynthesizeResult, if non-empty, is returned for every call.
	SynthesizeResult audio.Segment

	// SynthesizeErr, if non-nil, is returned wrapped in a *tts.SynthesisError.
	SynthesizeErr error

	// MsPerWord sets the generated duration. Zero means DefaultMsPerWord.
	MsPerWord int64

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCalls counts calls to ListVoices.
	ListVoicesCalls int
}

// Synthesize records the call and returns the configured result.
func (p *Provider) Synthesize(_ context.Context, text string, voice tts.VoiceProfile) (audio.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})

	name := p.Name
	if name == "" {
		name = "mock"
	}
	if p.SynthesizeErr != nil {
		return audio.Segment{}, tts.Fail(name, voice, p.SynthesizeErr)
	}
	if !p.SynthesizeResult.IsEmpty() {
		return p.SynthesizeResult, nil
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return audio.Segment{}, tts.Fail(name, voice, tts.ErrEmptyText)
	}
	ms := p.MsPerWord
	if ms <= 0 {
		ms = DefaultMsPerWord
	}
	return Tone(int64(words) * ms), nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns a copy of the recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesizeCall(nil), p.SynthesizeCalls...)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.ListVoicesCalls = 0
}

// Tone returns ms milliseconds of constant-level audio in [Format].
func Tone(ms int64) audio.Segment {
	frames := Format.FramesForMs(ms)
	data := make([]byte, frames*int64(Format.FrameSize()))
	for i := 0; i < len(data); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], Level)
	}
	seg, _ := audio.NewSegment(Format, data)
	return seg
}

var _ tts.Provider = (*Provider)(nil)
