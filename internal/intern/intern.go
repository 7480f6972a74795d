// Package intern executes spoken voice commands: the host says the intern
// keyword followed by an instruction, and an answer is spoken into the take
// right after the instruction.
//
// Planning happens on the source timeline, before reconstruction: [Blank]
// hides (and optionally cuts) the instruction words. Execution happens on the
// reconstructed take: [Executor.Apply] produces each response and splices it
// in at the end of its instruction. A response that cannot be produced is
// replaced by silence and reported through the degradation log; it never
// fails the episode.
package intern

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/castmix/internal/command"
	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/internal/degrade"
	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/internal/reconstruct"
	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// stage names this package in warnings and logs.
const stage = "intern"

// Response sources.
const (
	SourceOverride = "override"
	SourceLLM      = "llm"
	SourceEcho     = "echo"
	SourceFallback = "fallback"
)

// Response is the outcome of one intern command.
type Response struct {
	Ordinal     int    `json:"ordinal"`
	Instruction string `json:"instruction"`

	// Text is the spoken answer. Empty for fallback silence and for override
	// audio without text.
	Text string `json:"text,omitempty"`

	// Source is one of override, llm, echo or fallback.
	Source string `json:"source"`

	// Region is where the response (including padding) sits in the take.
	Region reconstruct.Region `json:"region"`

	// SpeechStart and SpeechEnd bound the response audio without padding,
	// in take seconds.
	SpeechStart float64 `json:"speech_start"`
	SpeechEnd   float64 `json:"speech_end"`
}

// Blank applies instruction stripping to tl. With strip_instruction_text the
// trigger and instruction words are hidden from the transcript; their audio
// is cut only with cut_instruction_audio. It returns the number of words
// blanked.
func Blank(tl *timeline.Timeline, cmds []command.Command, cfg config.InternConfig) int {
	if !cfg.StripInstructionText {
		return 0
	}
	n := 0
	for _, c := range cmds {
		if c.Kind == command.Intern {
			n += tl.Blank([]timeline.Span{c.Context}, c.Mode)
		}
	}
	return n
}

// Executor produces and inserts intern responses.
type Executor struct {
	cfg       config.InternConfig
	responder *Responder
	media     media.Resolver
	warnings  *degrade.Log
}

// NewExecutor creates an executor. responder may be nil, in which case only
// overrides with audio produce sound and everything else falls back to
// silence. resolver may be nil when no overrides reference audio.
func NewExecutor(cfg config.InternConfig, responder *Responder, resolver media.Resolver, warnings *degrade.Log) *Executor {
	return &Executor{cfg: cfg, responder: responder, media: resolver, warnings: warnings}
}

// Apply answers every intern command and inserts the responses into take.
// sourceWords are the words in source time, used to locate the end of each
// instruction.
func (e *Executor) Apply(ctx context.Context, take *reconstruct.Take, sourceWords []timeline.Word, cmds []command.Command) ([]Response, error) {
	var out []Response
	for _, c := range cmds {
		if c.Kind != command.Intern {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("intern: %w", err)
		}
		seg, resp := e.produce(ctx, c)
		resp.Ordinal = c.Ordinal
		resp.Instruction = c.Instruction

		before := audio.Silence(take.Audio.Format(), e.cfg.InsertPadMs+e.cfg.AddSilenceBeforeMs)
		after := audio.Silence(take.Audio.Format(), e.cfg.InsertPadMs+e.cfg.AddSilenceAfterMs)
		full := audio.Concat(take.Audio.Format(), before, seg, after)

		at := take.TimeAt(instructionEnd(sourceWords, c))
		resp.Region = take.Insert(at, full, fmt.Sprintf("intern %d", c.Ordinal))
		resp.SpeechStart = resp.Region.Start + before.Seconds()
		resp.SpeechEnd = resp.Region.End - after.Seconds()

		slog.DebugContext(ctx, "intern response inserted",
			"ordinal", c.Ordinal,
			"source", resp.Source,
			"at_s", resp.Region.Start,
			"duration_ms", full.DurationMs(),
		)
		out = append(out, resp)
	}
	return out, nil
}

// produce returns the response audio. Failures degrade to fallback silence.
func (e *Executor) produce(ctx context.Context, c command.Command) (audio.Segment, Response) {
	if o := c.Override; o != nil {
		return e.fromOverride(ctx, c, o)
	}
	if e.responder == nil {
		return e.fallback(ctx, "no_responder", nil, "no responder configured for intern %d", c.Ordinal)
	}
	text, source, err := e.responder.Answer(ctx, c.Instruction)
	if err != nil {
		return e.fallback(ctx, "answer_failed", err, "intern %d: answer failed", c.Ordinal)
	}
	seg, err := e.responder.Speak(ctx, text, "")
	if err != nil {
		return e.fallback(ctx, "synthesis_failed", err, "intern %d: synthesis failed", c.Ordinal)
	}
	return seg, Response{Text: text, Source: source}
}

func (e *Executor) fromOverride(ctx context.Context, c command.Command, o *command.Override) (audio.Segment, Response) {
	resp := Response{Text: o.Response, Source: SourceOverride}
	if o.AudioRef != "" {
		if e.media == nil {
			return e.fallback(ctx, "override_audio_missing", nil, "intern %d: no media resolver for %q", c.Ordinal, o.AudioRef)
		}
		seg, err := e.media.Resolve(ctx, o.AudioRef)
		if err != nil {
			return e.fallback(ctx, "override_audio_missing", err, "intern %d: override audio %q unavailable", c.Ordinal, o.AudioRef)
		}
		return seg, resp
	}
	if e.responder == nil {
		return e.fallback(ctx, "no_responder", nil, "no responder to speak override for intern %d", c.Ordinal)
	}
	seg, err := e.responder.Speak(ctx, o.Response, o.VoiceID)
	if err != nil {
		return e.fallback(ctx, "synthesis_failed", err, "intern %d: override synthesis failed", c.Ordinal)
	}
	return seg, resp
}

func (e *Executor) fallback(ctx context.Context, kind string, err error, format string, args ...any) (audio.Segment, Response) {
	e.warnings.Warn(ctx, stage, kind, err, format, args...)
	ms := e.cfg.FallbackSilenceMs
	if ms <= 0 {
		ms = config.DefaultFallbackSilenceMs
	}
	return audio.Silence(audio.CD, ms), Response{Source: SourceFallback}
}

// instructionEnd returns the source time at which the response goes: the
// end of the last word of the instruction context.
func instructionEnd(words []timeline.Word, c command.Command) float64 {
	end := min(c.Context.End, len(words))
	if end <= 0 {
		return 0
	}
	return words[end-1].End
}
