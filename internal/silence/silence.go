// Package silence shortens long pauses in a cleaned take.
//
// Only gaps between consecutive words that keep their audio are considered.
// A gap must be at least max_pause_s long, must not overlap inserted audio
// and must actually be quiet: enough of its 20 ms analysis windows have to
// sit at or below silence_rms. The total removed time never exceeds
// removal_guard_pct of the take.
package silence

import (
	"log/slog"

	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/internal/reconstruct"
	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// WindowMs is the length of one analysis window.
const WindowMs = 20

// Skip reasons reported in [Gap].
const (
	SkipInserted = "inserted_audio"
	SkipNoisy    = "not_silent"
	SkipBudget   = "removal_guard"
)

// Gap describes one pause that qualified by length.
type Gap struct {
	// Start and End bound the pause in input time.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Removed is the time cut from the pause, zero when skipped.
	Removed float64 `json:"removed"`

	// Partial reports that only ratio x excess was removed.
	Partial bool `json:"partial,omitempty"`

	// Skipped names why the pause was left alone, if it was.
	Skipped string `json:"skipped,omitempty"`

	// QuietFraction is the share of quiet analysis windows.
	QuietFraction float64 `json:"quiet_fraction"`
}

// Result is the compressed take.
type Result struct {
	Audio audio.Segment

	// Words are retimed into the compressed audio when Retimed is true and
	// are the input words otherwise.
	Words   []timeline.Word
	Retimed bool

	// Inserted are the input's inserted regions in output time.
	Inserted []reconstruct.Region

	Gaps []Gap

	// Removed is the total time cut, in seconds.
	Removed float64

	// cuts are the removed ranges in input time.
	cuts []reconstruct.Cut
}

// TimeAt maps an input time to output time.
func (r *Result) TimeAt(sec float64) float64 {
	shift := 0.0
	for _, c := range r.cuts {
		if sec <= c.Start {
			break
		}
		if sec < c.End {
			return c.Start - shift
		}
		shift += c.Len()
	}
	return sec - shift
}

// Compress shortens the qualifying pauses of take. With cfg disabled the
// take passes through unchanged.
func Compress(take *reconstruct.Take, cfg config.SilenceConfig) *Result {
	res := &Result{
		Audio:    take.Audio,
		Words:    take.Words,
		Inserted: take.Inserted,
	}
	if !cfg.Enabled {
		return res
	}

	f := take.Audio.Format()
	budget := cfg.RemovalGuardPct / 100 * take.Duration()
	remaining := budget

	prev := -1
	for i, w := range take.Words {
		if w.CutsAudio() {
			continue
		}
		if prev < 0 {
			prev = i
			continue
		}
		start, end := take.Words[prev].End, w.Start
		prev = i
		pause := end - start
		if pause < cfg.MaxPauseS || pause <= cfg.TargetPauseS {
			continue
		}

		g := Gap{Start: start, End: end}
		if overlapsInserted(take.Inserted, start, end) {
			g.Skipped = SkipInserted
			res.Gaps = append(res.Gaps, g)
			continue
		}
		g.QuietFraction = quietFraction(take.Audio, f, start, end, cfg.SilenceRMS)
		if g.QuietFraction < cfg.SimilarityGuard {
			g.Skipped = SkipNoisy
			res.Gaps = append(res.Gaps, g)
			continue
		}

		excess := pause - cfg.TargetPauseS
		remove := excess
		if remove > remaining {
			remove = cfg.Ratio * excess
			g.Partial = true
		}
		if remove > remaining || remove <= 0 {
			g.Skipped = SkipBudget
			g.Partial = false
			res.Gaps = append(res.Gaps, g)
			break
		}

		keep := pause - remove
		cutStart := start + keep/2
		res.cuts = append(res.cuts, reconstruct.Cut{Start: cutStart, End: cutStart + remove, FirstWord: i, LastWord: i})
		g.Removed = remove
		remaining -= remove
		res.Removed += remove
		res.Gaps = append(res.Gaps, g)
	}

	if len(res.cuts) == 0 {
		return res
	}
	res.Audio = cutAudio(take.Audio, res.cuts)
	if cfg.Retime() {
		res.Retimed = true
		res.Words = make([]timeline.Word, len(take.Words))
		for i, w := range take.Words {
			w.Start = res.TimeAt(w.Start)
			w.End = max(w.Start, res.TimeAt(w.End))
			res.Words[i] = w
		}
	}
	res.Inserted = make([]reconstruct.Region, len(take.Inserted))
	for i, r := range take.Inserted {
		r.Start, r.End = res.TimeAt(r.Start), res.TimeAt(r.End)
		res.Inserted[i] = r
	}

	slog.Debug("silence compressed",
		"pauses", len(res.cuts),
		"removed_s", res.Removed,
		"budget_s", budget,
		"retimed", res.Retimed,
	)
	return res
}

func overlapsInserted(regions []reconstruct.Region, start, end float64) bool {
	for _, r := range regions {
		if r.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// quietFraction returns the share of 20 ms windows in [start, end) whose RMS
// is at most threshold. A trailing partial window counts as a window.
func quietFraction(seg audio.Segment, f audio.Format, start, end, threshold float64) float64 {
	from, to := f.FrameAt(start), min(f.FrameAt(end), seg.Frames())
	win := int(max(1, f.FramesForMs(WindowMs)))
	total, quiet := 0, 0
	for s := from; s < to; s += win {
		total++
		if seg.RMS(s, min(s+win, to)) <= threshold {
			quiet++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(quiet) / float64(total)
}

func cutAudio(seg audio.Segment, cuts []reconstruct.Cut) audio.Segment {
	f := seg.Format()
	parts := make([]audio.Segment, 0, len(cuts)+1)
	pos := 0
	for _, c := range cuts {
		s, e := f.FrameAt(c.Start), f.FrameAt(c.End)
		parts = append(parts, seg.SliceFrames(pos, s))
		pos = max(pos, e)
	}
	parts = append(parts, seg.SliceFrames(pos, seg.Frames()))
	return audio.Concat(f, parts...)
}
