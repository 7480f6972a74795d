// Package sfx drops sound effects into a take where the host spoke a
// configured cue phrase ("drum roll", "applause"). The cue words are cut
// from the take and the clip plays in their place.
package sfx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/castmix/internal/command"
	"github.com/MrWong99/castmix/internal/degrade"
	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/internal/reconstruct"
	"github.com/MrWong99/castmix/pkg/timeline"
)

const stage = "sfx"

// Effect is one inserted clip.
type Effect struct {
	Ordinal int    `json:"ordinal"`
	Phrase  string `json:"phrase"`
	Clip    string `json:"clip"`

	// Region is where the clip sits in the take.
	Region reconstruct.Region `json:"region"`
}

// Blank cuts the cue words of every SFX command from tl and returns the
// number of words blanked.
func Blank(tl *timeline.Timeline, cmds []command.Command) int {
	var spans []timeline.Span
	for _, c := range cmds {
		if c.Kind == command.SFX {
			spans = append(spans, c.Trigger())
		}
	}
	if len(spans) == 0 {
		return 0
	}
	return tl.Blank(timeline.MergeSpans(spans), timeline.CutAudio)
}

// Executor inserts sound effects.
type Executor struct {
	media    media.Resolver
	warnings *degrade.Log
}

// NewExecutor creates an executor resolving clips through resolver.
func NewExecutor(resolver media.Resolver, warnings *degrade.Log) *Executor {
	return &Executor{media: resolver, warnings: warnings}
}

// Apply inserts the clip of every SFX command at the end of its cue phrase.
// A clip that cannot be resolved is skipped with a warning.
func (e *Executor) Apply(ctx context.Context, take *reconstruct.Take, sourceWords []timeline.Word, cmds []command.Command) ([]Effect, error) {
	var out []Effect
	for _, c := range cmds {
		if c.Kind != command.SFX {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("sfx: %w", err)
		}
		if e.media == nil {
			e.warnings.Warn(ctx, stage, "clip_missing", nil, "sfx %q: no media resolver", c.Clip)
			continue
		}
		clip, err := e.media.Resolve(ctx, c.Clip)
		if err != nil {
			e.warnings.Warn(ctx, stage, "clip_missing", err, "sfx %q for %q skipped", c.Clip, c.Phrase)
			continue
		}
		clip = clip.ApplyGainDB(c.GainDB)

		end := min(c.TriggerIndex+c.TriggerLen, len(sourceWords))
		var src float64
		if end > 0 {
			src = sourceWords[end-1].End
		}
		r := take.Insert(take.TimeAt(src), clip, fmt.Sprintf("sfx %d", c.Ordinal))
		out = append(out, Effect{Ordinal: c.Ordinal, Phrase: c.Phrase, Clip: c.Clip, Region: r})
		slog.DebugContext(ctx, "sound effect inserted", "clip", c.Clip, "at_s", r.Start, "duration_ms", clip.DurationMs())
	}
	return out, nil
}
