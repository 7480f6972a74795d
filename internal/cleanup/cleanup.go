// Package cleanup turns detected filler and flubber commands into blanked
// words on a [timeline.Timeline].
//
// Resolution is split from application: [FillerSpans] and [ResolveFlubbers]
// are pure functions over the detection, [Apply] blanks the result on an
// owned timeline. Nothing here touches audio; the reconstructor cuts the
// audio of words blanked in [timeline.CutAudio] mode.
package cleanup

import (
	"log/slog"

	"github.com/MrWong99/castmix/internal/command"
	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// Summary reports what [Apply] changed.
type Summary struct {
	// FillerWords is the number of words blanked as fillers.
	FillerWords int `json:"filler_words"`

	// Rollbacks lists the resolved flubbers in timeline order.
	Rollbacks []Rollback `json:"rollbacks"`

	// RolledBackWords is the number of words newly blanked by rollbacks.
	RolledBackWords int `json:"rolled_back_words"`
}

// Apply resolves the filler and flubber commands of det and blanks them on
// tl. Flubbers are resolved first so a filler inside a rolled-back clause is
// counted once. A [*FlubberAbortError] leaves tl untouched.
func Apply(tl *timeline.Timeline, det command.Detection, cfg config.CleanupConfig) (Summary, error) {
	var sum Summary
	words := tl.Words()

	rollbacks, err := ResolveFlubbers(words, det.Of(command.Flubber), cfg.Flubber)
	if err != nil {
		return sum, err
	}
	sum.Rollbacks = rollbacks
	for _, rb := range rollbacks {
		sum.RolledBackWords += tl.Blank([]timeline.Span{rb.Span}, rb.Mode)
	}

	sum.FillerWords = tl.Blank(FillerSpans(det), timeline.CutAudio)

	if sum.FillerWords > 0 || len(rollbacks) > 0 {
		slog.Debug("cleanup applied",
			"fillers", sum.FillerWords,
			"rollbacks", len(rollbacks),
			"rolled_back_words", sum.RolledBackWords,
			"version", tl.Version(),
		)
	}
	return sum, nil
}
