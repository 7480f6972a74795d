// Package timeline holds the word-level transcript representation that every
// castmix editing stage consumes and produces.
//
// Words are never deleted or reordered. Editing stages blank them (empty
// text) so later stages can always recover the absolute timing of the take.
// A [Timeline] is owned by one stage at a time; ownership moves with
// [Timeline.Handoff].
package timeline

import (
	"errors"
	"fmt"
	"sort"
)

// Word is a single transcribed token with its timing in the source take.
type Word struct {
	// Text is the token as transcribed. Empty means the word has been blanked.
	Text string `json:"text"`

	// Start and End are offsets into the source take, in seconds.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Speaker is the diarization label, if any.
	Speaker string `json:"speaker,omitempty"`

	// KeepAudio marks a transcript-only blank: the word is hidden from edited
	// transcripts but its audio survives reconstruction.
	KeepAudio bool `json:"keep_audio,omitempty"`
}

// Blank reports whether the word has been blanked.
func (w Word) Blank() bool { return w.Text == "" }

// CutsAudio reports whether reconstruction removes the word's audio.
func (w Word) CutsAudio() bool { return w.Text == "" && !w.KeepAudio }

// Duration returns the word length in seconds.
func (w Word) Duration() float64 { return w.End - w.Start }

// Span is a half-open range [Start, End) of word indices.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of words in the span.
func (s Span) Len() int { return max(0, s.End-s.Start) }

// Contains reports whether index i falls inside the span.
func (s Span) Contains(i int) bool { return i >= s.Start && i < s.End }

// Mode selects how a blanked span is treated by reconstruction.
type Mode int

const (
	// CutAudio blanks the text and removes the audio.
	CutAudio Mode = iota
	// TextOnly blanks the text but keeps the audio.
	TextOnly
)

// String returns "audio" or "text", matching the command resolution modes.
func (m Mode) String() string {
	if m == TextOnly {
		return "text"
	}
	return "audio"
}

// ErrInvalidWords is returned by [New] for sequences with inverted or unordered timings.
var ErrInvalidWords = errors.New("timeline: invalid word sequence")

// Timeline is an owned, versioned word buffer.
//
// It is not safe for concurrent use. Only the current owner may mutate it;
// after [Timeline.Handoff] the old value is empty and mutations through it
// panic.
type Timeline struct {
	words   []Word
	version int
	owner   string
	moved   bool
}

// New validates words and takes a private copy. End must not precede Start,
// and Start must be non-decreasing.
func New(words []Word) (*Timeline, error) {
	var errs []error
	for i, w := range words {
		if w.End < w.Start {
			errs = append(errs, fmt.Errorf("word %d (%q): end %.3f before start %.3f", i, w.Text, w.End, w.Start))
		}
		if i > 0 && w.Start < words[i-1].Start {
			errs = append(errs, fmt.Errorf("word %d (%q): start %.3f before previous start %.3f", i, w.Text, w.Start, words[i-1].Start))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWords, errors.Join(errs...))
	}
	cp := make([]Word, len(words))
	copy(cp, words)
	return &Timeline{words: cp, owner: "input"}, nil
}

// Len returns the number of words.
func (t *Timeline) Len() int { return len(t.words) }

// At returns the word at index i.
func (t *Timeline) At(i int) Word { return t.words[i] }

// Words returns a copy of the word sequence.
func (t *Timeline) Words() []Word {
	cp := make([]Word, len(t.words))
	copy(cp, t.words)
	return cp
}

// Version returns the number of successful mutations so far.
func (t *Timeline) Version() int { return t.version }

// Owner returns the name of the stage currently holding the timeline.
func (t *Timeline) Owner() string { return t.owner }

// Handoff transfers ownership to stage. The receiver is left empty and must
// not be used again.
func (t *Timeline) Handoff(stage string) *Timeline {
	t.mustOwn()
	next := &Timeline{words: t.words, version: t.version, owner: stage}
	t.words = nil
	t.moved = true
	return next
}

// Blank empties the text of every word covered by spans. Indices outside the
// timeline are ignored. It returns the number of words newly blanked (or newly
// promoted from text-only to audio blanking); when that is zero the version is
// unchanged.
func (t *Timeline) Blank(spans []Span, mode Mode) int {
	t.mustOwn()
	changed := 0
	for _, s := range spans {
		for i := max(0, s.Start); i < min(s.End, len(t.words)); i++ {
			w := &t.words[i]
			switch {
			case !w.Blank():
				w.Text = ""
				w.KeepAudio = mode == TextOnly
				changed++
			case mode == CutAudio && w.KeepAudio:
				w.KeepAudio = false
				changed++
			}
		}
	}
	if changed > 0 {
		t.version++
	}
	return changed
}

// Duration returns the end of the last word, in seconds.
func (t *Timeline) Duration() float64 {
	var end float64
	for _, w := range t.words {
		end = max(end, w.End)
	}
	return end
}

func (t *Timeline) mustOwn() {
	if t.moved {
		panic("timeline: use after handoff")
	}
}

// MergeSpans sorts spans and merges overlapping or adjacent ones.
func MergeSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Len() > 0 {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []Span
	for _, s := range sorted {
		if n := len(out); n > 0 && s.Start <= out[n-1].End {
			out[n-1].End = max(out[n-1].End, s.End)
			continue
		}
		out = append(out, s)
	}
	return out
}
