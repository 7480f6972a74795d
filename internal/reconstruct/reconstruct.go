// Package reconstruct cuts the audio of blanked words out of a recorded take
// and keeps the word timings consistent with the edited audio.
package reconstruct

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// ErrEmptyTake is returned by [Build] when the source audio has no frames.
var ErrEmptyTake = errors.New("reconstruct: empty take")

// Cut is a removed range of the source audio, in source seconds.
type Cut struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// FirstWord and LastWord are the indices of the cut word run.
	FirstWord int `json:"first_word"`
	LastWord  int `json:"last_word"`
}

// Len returns the cut duration in seconds.
func (c Cut) Len() float64 { return c.End - c.Start }

// Region is a stretch of inserted audio, in take seconds.
type Region struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Label string  `json:"label"`
}

// Overlaps reports whether r intersects [start, end).
func (r Region) Overlaps(start, end float64) bool {
	return r.Start < end && start < r.End
}

// Take is a cleaned take: the edited audio, the words retimed into take
// time and the bookkeeping needed to map source time onto it.
type Take struct {
	Audio audio.Segment

	// Words are the edited words in take time. Cut words collapse to zero
	// length at the cut point.
	Words []timeline.Word

	// Cuts are the removed source ranges in source order.
	Cuts []Cut

	// Inserted lists audio spliced in with [Take.Insert], in take time.
	Inserted []Region
}

// Build cuts every maximal run of audio-blanked words from src. A run spans
// from its first word's start to its last word's end; all other audio,
// including lead-in, trailing audio and inter-word gaps, is kept.
func Build(src audio.Segment, words []timeline.Word) (*Take, error) {
	if src.IsEmpty() {
		return nil, ErrEmptyTake
	}
	f := src.Format()
	cuts := cutRuns(words, src.Seconds())

	kept := make([]audio.Segment, 0, len(cuts)+1)
	pos := 0
	for _, c := range cuts {
		start, end := f.FrameAt(c.Start), f.FrameAt(c.End)
		if start > pos {
			kept = append(kept, src.SliceFrames(pos, start))
		}
		pos = max(pos, end)
	}
	kept = append(kept, src.SliceFrames(pos, src.Frames()))

	t := &Take{
		Audio: audio.Concat(f, kept...),
		Cuts:  cuts,
	}
	t.Words = make([]timeline.Word, len(words))
	for i, w := range words {
		w.Start = t.sourceToTake(w.Start)
		w.End = max(w.Start, t.sourceToTake(w.End))
		t.Words[i] = w
	}

	var removed float64
	for _, c := range cuts {
		removed += c.Len()
	}
	slog.Debug("take reconstructed",
		"cuts", len(cuts),
		"removed_s", fmt.Sprintf("%.3f", removed),
		"source_s", fmt.Sprintf("%.3f", src.Seconds()),
		"take_s", fmt.Sprintf("%.3f", t.Audio.Seconds()),
	)
	return t, nil
}

// cutRuns groups consecutive audio-blanked words into cuts, clamped to the
// source duration. Overlapping runs are merged.
func cutRuns(words []timeline.Word, limit float64) []Cut {
	var cuts []Cut
	for i := 0; i < len(words); {
		if !words[i].CutsAudio() {
			i++
			continue
		}
		j := i
		end := words[i].End
		for j+1 < len(words) && words[j+1].CutsAudio() {
			j++
			end = max(end, words[j].End)
		}
		c := Cut{Start: max(0, words[i].Start), End: min(end, limit), FirstWord: i, LastWord: j}
		if c.End > c.Start {
			if n := len(cuts); n > 0 && c.Start <= cuts[n-1].End {
				cuts[n-1].End = max(cuts[n-1].End, c.End)
				cuts[n-1].LastWord = j
			} else {
				cuts = append(cuts, c)
			}
		}
		i = j + 1
	}
	return cuts
}

// sourceToTake maps a source time through the cut list only.
func (t *Take) sourceToTake(sec float64) float64 {
	shift := 0.0
	for _, c := range t.Cuts {
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

// TimeAt maps a source time to take time. Times inside a cut map to the cut
// point; audio inserted before the mapped point shifts it later.
func (t *Take) TimeAt(sourceSec float64) float64 {
	sec := t.sourceToTake(sourceSec)
	for _, r := range t.Inserted {
		if r.Start <= sec {
			sec += r.End - r.Start
		}
	}
	return sec
}

// Duration returns the take length in seconds.
func (t *Take) Duration() float64 { return t.Audio.Seconds() }

// Insert splices seg into the take at atSec (take time) and shifts every
// later word and region. Words that end at or before atSec stay put, so an
// insertion at a word boundary lands after that word. Zero-length cut words
// sitting exactly at atSec stay before the insertion too.
func (t *Take) Insert(atSec float64, seg audio.Segment, label string) Region {
	atSec = max(0, min(atSec, t.Duration()))
	f := t.Audio.Format()
	frame := f.FrameAt(atSec)
	seg = seg.ConvertTo(f)
	t.Audio = t.Audio.Insert(frame, seg)

	at := float64(frame) / float64(f.SampleRate)
	d := seg.Seconds()
	for i := range t.Words {
		if w := &t.Words[i]; w.Start >= at && w.End > at {
			w.Start += d
			w.End += d
		}
	}
	for i := range t.Inserted {
		if t.Inserted[i].Start >= at {
			t.Inserted[i].Start += d
			t.Inserted[i].End += d
		}
	}
	r := Region{Start: at, End: at + d, Label: label}
	t.Inserted = append(t.Inserted, r)
	slices.SortStableFunc(t.Inserted, func(a, b Region) int { return cmp.Compare(a.Start, b.Start) })
	return r
}
