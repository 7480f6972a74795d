package cleanup

import (
	"fmt"

	"github.com/MrWong99/castmix/internal/command"
	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// FlubberAbortError is returned when two rollback keywords are spoken closer
// together than the lookback window. The restart point of the second would be
// ambiguous, so the run stops instead of guessing.
type FlubberAbortError struct {
	// First and Second are the word indices of the two triggers.
	First  int
	Second int

	// Lookback is the configured window in words.
	Lookback int
}

func (e *FlubberAbortError) Error() string {
	return fmt.Sprintf("cleanup: flubber at word %d follows flubber at word %d within %d words",
		e.Second, e.First, e.Lookback)
}

// Rollback is one resolved flubber.
type Rollback struct {
	// Trigger is the keyword span.
	Trigger timeline.Span `json:"trigger"`

	// Span runs from the restart point through the trigger.
	Span timeline.Span `json:"span"`

	// Mode is how the span is blanked.
	Mode timeline.Mode `json:"-"`

	// Signal names the heuristic that chose the restart point: "start",
	// "sentence", "pause" or "lookback".
	Signal string `json:"signal"`
}

// ResolveFlubbers computes the rollback of every flubber command.
//
// The restart point is the earliest clause start in the lookback window
// before the trigger. Index 0 starts a clause, as does a word after a word
// ending in '.', '!' or '?', and a word preceded by a pause of at least
// cfg.RestartPauseS seconds. With no clause start in the window the rollback
// reaches the window boundary.
//
// With an explicit lookback, two triggers fewer than MaxLookbackWords words
// apart return a [*FlubberAbortError].
func ResolveFlubbers(words []timeline.Word, flubbers []command.Command, cfg config.FlubberConfig) ([]Rollback, error) {
	if len(flubbers) == 0 {
		return nil, nil
	}
	lookback := cfg.Lookback()
	if cfg.Explicit() {
		for k := 1; k < len(flubbers); k++ {
			prev, cur := flubbers[k-1].TriggerIndex, flubbers[k].TriggerIndex
			if cur-prev < lookback {
				return nil, &FlubberAbortError{First: prev, Second: cur, Lookback: lookback}
			}
		}
	}

	out := make([]Rollback, 0, len(flubbers))
	for _, c := range flubbers {
		trig := c.Trigger()
		lo := max(0, trig.Start-lookback)
		restart, signal := restartPoint(words, lo, trig.Start, cfg.RestartPauseS)
		out = append(out, Rollback{
			Trigger: trig,
			Span:    timeline.Span{Start: restart, End: trig.End},
			Mode:    c.Mode,
			Signal:  signal,
		})
	}
	return out, nil
}

func restartPoint(words []timeline.Word, lo, hi int, pauseS float64) (int, string) {
	for j := lo; j < hi; j++ {
		switch {
		case j == 0:
			return j, "start"
		case timeline.EndsSentence(words[j-1].Text):
			return j, "sentence"
		case pauseS > 0 && words[j].Start-words[j-1].End >= pauseS:
			return j, "pause"
		}
	}
	return lo, "lookback"
}
