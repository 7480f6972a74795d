package intern

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/provider/llm"
	"github.com/MrWong99/castmix/pkg/provider/tts"
)

// DefaultSystemPrompt frames the LLM as the show's production assistant.
const DefaultSystemPrompt = "You are the production intern of a podcast. " +
	"The host gave you a spoken instruction during recording. " +
	"Answer in one or two short spoken sentences that can be read aloud as-is. " +
	"Do not use markdown, lists or stage directions."

// ErrEmptyAnswer is returned when the LLM answers with no text.
var ErrEmptyAnswer = errors.New("intern: empty answer")

// Responder turns an instruction into spoken audio: an optional LLM drafts
// the answer, TTS renders it.
type Responder struct {
	tts       tts.Provider
	voice     tts.VoiceProfile
	llm       llm.Provider
	prompt    string
	maxTokens int
}

// ResponderOption configures a [Responder].
type ResponderOption func(*Responder)

// WithLLM lets the responder answer instructions with p. Without an LLM the
// instruction text itself is spoken.
func WithLLM(p llm.Provider, systemPrompt string, maxTokens int) ResponderOption {
	return func(r *Responder) {
		r.llm = p
		if systemPrompt != "" {
			r.prompt = systemPrompt
		}
		r.maxTokens = maxTokens
	}
}

// NewResponder creates a responder speaking with voice through p.
func NewResponder(p tts.Provider, voice tts.VoiceProfile, opts ...ResponderOption) *Responder {
	r := &Responder{tts: p, voice: voice, prompt: DefaultSystemPrompt}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Voice returns the default response voice.
func (r *Responder) Voice() tts.VoiceProfile { return r.voice }

// Answer returns the text to speak for instruction.
func (r *Responder) Answer(ctx context.Context, instruction string) (text, source string, err error) {
	instruction = strings.TrimSpace(instruction)
	if r.llm == nil {
		return instruction, SourceEcho, nil
	}
	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: r.prompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: instruction}},
		MaxTokens:    r.maxTokens,
	})
	if err != nil {
		return "", SourceLLM, fmt.Errorf("intern: answer: %w", err)
	}
	text = strings.TrimSpace(resp.Content)
	if text == "" {
		return "", SourceLLM, ErrEmptyAnswer
	}
	return text, SourceLLM, nil
}

// Speak synthesizes text. An empty voice ID uses the responder voice; other
// fields of the responder voice are kept.
func (r *Responder) Speak(ctx context.Context, text, voiceID string) (audio.Segment, error) {
	v := r.voice
	if voiceID != "" && voiceID != v.ID {
		v.ID = voiceID
		v.Name = ""
	}
	if strings.TrimSpace(text) == "" {
		return audio.Segment{}, tts.Fail(v.Provider, v, tts.ErrEmptyText)
	}
	return r.tts.Synthesize(ctx, text, v)
}
