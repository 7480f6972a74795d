// Package transcript renders the three transcript variants of an episode.
//
// The original variant is the input word list as recorded. The edited
// variant holds the words that survived editing, retimed to the final take,
// with spoken intern responses spliced in. The published variant shifts the
// edited phrases onto the episode timeline and adds a cue at every
// non-content template segment.
package transcript

import (
	"cmp"
	"slices"
	"strings"

	"github.com/MrWong99/castmix/pkg/timeline"
)

// Variant names a transcript rendering.
type Variant string

const (
	Original  Variant = "original"
	Edited    Variant = "edited"
	Published Variant = "published"
)

// Kind classifies a phrase.
type Kind string

const (
	Speech   Kind = "speech"
	Response Kind = "response"
	Cue      Kind = "cue"
)

// Grouping limits.
const (
	MaxPhraseGapS  = 1.0
	MaxPhraseWords = 30
)

// Phrase is a run of consecutive words, a spliced response or a segment cue.
// Times are in seconds on the variant's timeline.
type Phrase struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
	Kind    Kind    `json:"kind"`
}

// Transcript is one rendered variant.
type Transcript struct {
	Variant Variant  `json:"variant"`
	Phrases []Phrase `json:"phrases"`
}

// Insert is spoken audio added to the take that has no source words, such as
// an intern response.
type Insert struct {
	Start   float64
	End     float64
	Speaker string
	Text    string
}

// Marker is a template segment placed on the episode timeline.
type Marker struct {
	// Kind is the template segment kind ("intro", "outro", "tts", "static").
	Kind    string
	Label   string
	StartMs int64
	EndMs   int64
}

// CueText returns the published cue for m.
func (m Marker) CueText() string {
	switch m.Kind {
	case "intro":
		return "[Intro]"
	case "outro":
		return "[Outro]"
	}
	label := m.Label
	if label == "" {
		label = m.Kind
	}
	return "[Segment: " + label + "]"
}

// BuildOriginal renders words verbatim. Blanked words are skipped; pass the
// pre-edit word list to keep them.
func BuildOriginal(words []timeline.Word) Transcript {
	return Transcript{Variant: Original, Phrases: Group(words)}
}

// BuildEdited renders the surviving words of the final take together with
// inserted responses.
func BuildEdited(words []timeline.Word, inserts []Insert) Transcript {
	phrases := Group(words)
	for _, in := range inserts {
		text := strings.TrimSpace(in.Text)
		if text == "" {
			continue
		}
		phrases = append(phrases, Phrase{Start: in.Start, End: in.End, Speaker: in.Speaker, Text: text, Kind: Response})
	}
	sortPhrases(phrases)
	return Transcript{Variant: Edited, Phrases: phrases}
}

// BuildPublished shifts edited by contentStartMs and adds a cue for every
// marker. A negative contentStartMs means the take was not placed; only the
// cues are rendered then.
func BuildPublished(edited Transcript, contentStartMs int64, markers []Marker) Transcript {
	var phrases []Phrase
	if contentStartMs >= 0 {
		shift := float64(contentStartMs) / 1000
		phrases = make([]Phrase, 0, len(edited.Phrases)+len(markers))
		for _, p := range edited.Phrases {
			p.Start += shift
			p.End += shift
			phrases = append(phrases, p)
		}
	}
	for _, m := range markers {
		phrases = append(phrases, Phrase{
			Start: float64(m.StartMs) / 1000,
			End:   float64(m.EndMs) / 1000,
			Text:  m.CueText(),
			Kind:  Cue,
		})
	}
	sortPhrases(phrases)
	return Transcript{Variant: Published, Phrases: phrases}
}

// Group joins consecutive non-blank words into phrases. A phrase ends on a
// speaker change, a pause longer than [MaxPhraseGapS], after a sentence-final
// word or at [MaxPhraseWords] words.
func Group(words []timeline.Word) []Phrase {
	var (
		out  []Phrase
		cur  []string
		prev timeline.Word
		open bool
	)
	flush := func() {
		if len(cur) > 0 {
			out[len(out)-1].Text = strings.Join(cur, " ")
		}
		cur, open = cur[:0], false
	}
	for _, w := range words {
		if w.Blank() {
			continue
		}
		if open && (w.Speaker != prev.Speaker ||
			w.Start-prev.End > MaxPhraseGapS ||
			timeline.EndsSentence(prev.Text) ||
			len(cur) >= MaxPhraseWords) {
			flush()
		}
		if !open {
			out = append(out, Phrase{Start: w.Start, Speaker: w.Speaker, Kind: Speech})
			open = true
		}
		cur = append(cur, w.Text)
		out[len(out)-1].End = w.End
		prev = w
	}
	flush()
	return out
}

// Text returns the plain text of t without timestamps.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t.Phrases))
	for _, p := range t.Phrases {
		if p.Kind == Speech {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, " ")
}

func sortPhrases(ps []Phrase) {
	slices.SortStableFunc(ps, func(a, b Phrase) int { return cmp.Compare(a.Start, b.Start) })
}
