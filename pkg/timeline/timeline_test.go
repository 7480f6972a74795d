package timeline_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/MrWong99/castmix/pkg/timeline"
)

func words(texts ...string) []timeline.Word {
	out := make([]timeline.Word, len(texts))
	for i, t := range texts {
		out[i] = timeline.Word{Text: t, Start: float64(i) * 0.5, End: float64(i)*0.5 + 0.4}
	}
	return out
}

func TestNew_ValidatesTiming(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		words   []timeline.Word
		wantErr bool
	}{
		{"empty", nil, false},
		{"ordered", words("a", "b", "c"), false},
		{"end before start", []timeline.Word{{Text: "a", Start: 1, End: 0.5}}, true},
		{"out of order", []timeline.Word{{Text: "a", Start: 1, End: 1.2}, {Text: "b", Start: 0.5, End: 0.7}}, true},
		{"equal starts", []timeline.Word{{Text: "a", Start: 1, End: 1}, {Text: "b", Start: 1, End: 1.2}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := timeline.New(tt.words)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, timeline.ErrInvalidWords) {
				t.Errorf("error %v does not wrap ErrInvalidWords", err)
			}
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	t.Parallel()
	in := words("a", "b")
	tl, err := timeline.New(in)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	in[0].Text = "mutated"
	if tl.At(0).Text != "a" {
		t.Errorf("timeline aliased caller slice: got %q", tl.At(0).Text)
	}
}

func TestBlank_PreservesTimingAndVersions(t *testing.T) {
	t.Parallel()
	tl, _ := timeline.New(words("a", "b", "c", "d"))
	before := tl.Words()

	n := tl.Blank([]timeline.Span{{Start: 1, End: 3}, {Start: 10, End: 12}}, timeline.CutAudio)
	if n != 2 {
		t.Fatalf("Blank returned %d, want 2", n)
	}
	if tl.Version() != 1 {
		t.Errorf("version = %d, want 1", tl.Version())
	}
	for i, w := range tl.Words() {
		if w.Start != before[i].Start || w.End != before[i].End {
			t.Errorf("word %d timing changed", i)
		}
	}
	if got := []bool{tl.At(0).Blank(), tl.At(1).Blank(), tl.At(2).Blank(), tl.At(3).Blank()}; !reflect.DeepEqual(got, []bool{false, true, true, false}) {
		t.Errorf("blank flags = %v", got)
	}

	// Re-blanking the same span changes nothing and keeps the version.
	if n := tl.Blank([]timeline.Span{{Start: 1, End: 3}}, timeline.CutAudio); n != 0 {
		t.Errorf("second Blank returned %d, want 0", n)
	}
	if tl.Version() != 1 {
		t.Errorf("version = %d after no-op, want 1", tl.Version())
	}
}

func TestBlank_TextOnlyPromotion(t *testing.T) {
	t.Parallel()
	tl, _ := timeline.New(words("a", "b"))
	tl.Blank([]timeline.Span{{Start: 0, End: 1}}, timeline.TextOnly)
	if w := tl.At(0); !w.Blank() || w.CutsAudio() {
		t.Fatalf("text-only blank: %+v", w)
	}
	if n := tl.Blank([]timeline.Span{{Start: 0, End: 1}}, timeline.CutAudio); n != 1 {
		t.Fatalf("promotion returned %d, want 1", n)
	}
	if !tl.At(0).CutsAudio() {
		t.Error("word should cut audio after promotion")
	}
	// Text-only never downgrades an audio blank.
	if n := tl.Blank([]timeline.Span{{Start: 0, End: 1}}, timeline.TextOnly); n != 0 {
		t.Errorf("downgrade returned %d, want 0", n)
	}
}

func TestHandoff(t *testing.T) {
	t.Parallel()
	tl, _ := timeline.New(words("a", "b"))
	next := tl.Handoff("cleanup")
	if next.Owner() != "cleanup" || next.Len() != 2 {
		t.Fatalf("handoff: owner %q len %d", next.Owner(), next.Len())
	}
	if tl.Len() != 0 {
		t.Errorf("old timeline still holds %d words", tl.Len())
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic when mutating a handed-off timeline")
		}
	}()
	tl.Blank([]timeline.Span{{Start: 0, End: 1}}, timeline.CutAudio)
}

func TestMergeSpans(t *testing.T) {
	t.Parallel()
	got := timeline.MergeSpans([]timeline.Span{{Start: 5, End: 7}, {Start: 0, End: 2}, {Start: 2, End: 3}, {Start: 6, End: 9}, {Start: 4, End: 4}})
	want := []timeline.Span{{Start: 0, End: 3}, {Start: 5, End: 9}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeSpans = %v, want %v", got, want)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Flubber,", "flubber"},
		{"FLÜBBER!", "flubber"},
		{"don't", "dont"},
		{"...", ""},
		{"Café", "cafe"},
		{"42%", "42"},
	}
	for _, tt := range tests {
		if got := timeline.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()
	tests := []struct {
		phrase string
		want   []string
	}{
		{"  You know, - like-ish ", []string{"you", "know", "likeish"}},
		{"uh-huh", []string{"uhhuh"}},
		{"Drum-Roll!", []string{"drumroll"}},
	}
	for _, tt := range tests {
		if got := timeline.Tokens(tt.phrase); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokens(%q) = %v, want %v", tt.phrase, got, tt.want)
		}
	}
}

func TestTokens_AgreeWithNormalize(t *testing.T) {
	t.Parallel()
	for _, word := range []string{"Uh-huh,", "drum-roll!", "Well-known."} {
		toks := timeline.Tokens(word)
		if len(toks) != 1 || toks[0] != timeline.Normalize(word) {
			t.Errorf("Tokens(%q) = %v, Normalize = %q", word, toks, timeline.Normalize(word))
		}
	}
}

func TestEndsSentence(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]bool{
		"done.":   true,
		"really?": true,
		"wow!\"":  true,
		"(end.)":  true,
		"word":    false,
		"":        false,
		"3.5":     false,
	} {
		if got := timeline.EndsSentence(in); got != want {
			t.Errorf("EndsSentence(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMatchAt(t *testing.T) {
	t.Parallel()
	ws := words("So,", "you", "know.", "")
	if !timeline.MatchAt(ws, 1, []string{"you", "know"}) {
		t.Error("expected phrase match at 1")
	}
	if timeline.MatchAt(ws, 2, []string{"know", "x"}) {
		t.Error("blank word must not match")
	}
	if timeline.MatchAt(ws, 3, []string{"a", "b"}) {
		t.Error("phrase past end must not match")
	}
}
