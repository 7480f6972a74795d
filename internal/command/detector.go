package command

import (
	"slices"
	"strings"

	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// Options adjusts a single detection run.
type Options struct {
	// MixOnly marks pre-mixed input; detection is skipped unless Force is set.
	MixOnly bool

	// Force runs detection even when MixOnly is set.
	Force bool

	// Overrides are pre-approved intern responses to attach.
	Overrides []Override
}

// phrase is one matchable trigger: its normalized tokens and what a match
// produces.
type phrase struct {
	kind   Kind
	text   string
	tokens []string
	clip   string
	gainDB float64
}

// Detector scans word timelines for commands. It is immutable after
// construction and safe for concurrent use.
type Detector struct {
	cfg config.CleanupConfig

	// phrases are sorted by kind priority, then longest first, so a longer
	// phrase wins over a prefix of itself.
	phrases    []phrase
	endMarkers [][]string
	fuzzy      map[Kind]*fuzzyKeyword
}

// New builds a detector from cleanup configuration. The config should have
// defaults applied.
func New(cfg config.CleanupConfig) *Detector {
	d := &Detector{cfg: cfg, fuzzy: make(map[Kind]*fuzzyKeyword)}

	addAll := func(kind Kind, texts []string, clip string, gain float64) {
		for _, t := range texts {
			if toks := timeline.Tokens(t); len(toks) > 0 {
				d.phrases = append(d.phrases, phrase{kind: kind, text: t, tokens: toks, clip: clip, gainDB: gain})
			}
		}
	}
	if !cfg.Intern.Disabled {
		addAll(Intern, append([]string{cfg.Intern.Keyword}, cfg.Intern.Aliases...), "", 0)
		for _, m := range cfg.Intern.EndMarkers {
			if toks := timeline.Tokens(m); len(toks) > 0 {
				d.endMarkers = append(d.endMarkers, toks)
			}
		}
		if cfg.FuzzyKeywords {
			if toks := timeline.Tokens(cfg.Intern.Keyword); len(toks) == 1 {
				d.fuzzy[Intern] = newFuzzyKeyword(toks[0], 0)
			}
		}
	}
	if !cfg.Flubber.Disabled {
		addAll(Flubber, append([]string{cfg.Flubber.Keyword}, cfg.Flubber.Aliases...), "", 0)
		if cfg.FuzzyKeywords {
			if toks := timeline.Tokens(cfg.Flubber.Keyword); len(toks) == 1 {
				d.fuzzy[Flubber] = newFuzzyKeyword(toks[0], 0)
			}
		}
	}
	for _, e := range cfg.SFX {
		addAll(SFX, append([]string{e.Phrase}, e.Aliases...), e.Clip, e.GainDB)
	}
	addAll(Filler, cfg.Fillers, "", 0)

	slices.SortStableFunc(d.phrases, func(a, b phrase) int {
		if pa, pb := slices.Index(Kinds, a.kind), slices.Index(Kinds, b.kind); pa != pb {
			return pa - pb
		}
		return len(b.tokens) - len(a.tokens)
	})
	slices.SortStableFunc(d.endMarkers, func(a, b []string) int { return len(b) - len(a) })
	return d
}

// Detect scans words and returns every command in timeline order.
//
// Triggers never overlap: the scan takes the highest-priority match at each
// position (intern, flubber, sfx, filler; longer phrases first) and resumes
// after it. An intern instruction is consumed whole, so keywords spoken
// inside it are part of the instruction.
func (d *Detector) Detect(words []timeline.Word, opts Options) Detection {
	det := Detection{Counts: make(map[Kind]int)}
	if opts.MixOnly && !opts.Force {
		det.Skipped = true
		det.UnusedOverrides = len(opts.Overrides)
		return det
	}

	norm := make([]string, len(words))
	for i, w := range words {
		if !w.Blank() {
			norm[i] = timeline.Normalize(w.Text)
		}
	}

	for i := 0; i < len(words); {
		cmd, ok := d.matchAt(words, norm, i)
		if !ok {
			i++
			continue
		}
		cmd.Ordinal = det.Counts[cmd.Kind]
		det.Counts[cmd.Kind]++
		det.Commands = append(det.Commands, cmd)
		i = max(cmd.Context.End, cmd.TriggerIndex+cmd.TriggerLen)
		if cmd.Kind == Flubber {
			i = cmd.TriggerIndex + cmd.TriggerLen
		}
	}

	det.UnusedOverrides = attachOverrides(det.Commands, opts.Overrides)
	return det
}

func (d *Detector) matchAt(words []timeline.Word, norm []string, i int) (Command, bool) {
	if norm[i] == "" {
		return Command{}, false
	}
	for _, p := range d.phrases {
		if matchTokens(norm, i, p.tokens) {
			return d.build(words, norm, p, i, len(p.tokens), false), true
		}
	}
	for _, kind := range []Kind{Intern, Flubber} {
		fk := d.fuzzy[kind]
		if fk == nil {
			continue
		}
		if _, ok := fk.match(norm[i]); ok {
			p := phrase{kind: kind, text: fk.keyword, tokens: []string{fk.keyword}}
			return d.build(words, norm, p, i, 1, true), true
		}
	}
	return Command{}, false
}

func (d *Detector) build(words []timeline.Word, norm []string, p phrase, i, n int, fuzzy bool) Command {
	cmd := Command{
		Kind:         p.kind,
		TriggerIndex: i,
		TriggerLen:   n,
		Phrase:       p.text,
		Fuzzy:        fuzzy,
		Context:      timeline.Span{Start: i, End: i + n},
		Mode:         timeline.CutAudio,
	}
	switch p.kind {
	case Flubber:
		cmd.Context.Start = max(0, i-d.cfg.Flubber.Lookback())
		if !d.cfg.Flubber.Explicit() || d.cfg.Flubber.TranscriptOnly {
			cmd.Mode = timeline.TextOnly
		}
	case Intern:
		d.instruction(words, norm, &cmd)
		if !d.cfg.Intern.CutInstructionAudio {
			cmd.Mode = timeline.TextOnly
		}
	case SFX:
		cmd.Clip = p.clip
		cmd.GainDB = p.gainDB
	}
	return cmd
}

// instruction extends an intern command's context to its end marker, or to
// the first sentence-final word, never past MaxInstructionWords words after
// the trigger or into the next intern trigger.
func (d *Detector) instruction(words []timeline.Word, norm []string, cmd *Command) {
	start := cmd.TriggerIndex + cmd.TriggerLen
	limit := min(len(words), start+d.cfg.Intern.MaxInstructionWords)
	end := limit
	markerLen := 0

scan:
	for j := start; j < limit; j++ {
		if norm[j] == "" {
			continue
		}
		if j > start && d.startsIntern(norm, j) {
			end = j
			break
		}
		for _, m := range d.endMarkers {
			if matchTokens(norm, j, m) {
				end, markerLen = j+len(m), len(m)
				cmd.Terminated = true
				break scan
			}
		}
		if timeline.EndsSentence(words[j].Text) {
			end = j + 1
			break
		}
	}

	cmd.Context.End = end
	var parts []string
	for j := start; j < end-markerLen; j++ {
		if !words[j].Blank() {
			parts = append(parts, words[j].Text)
		}
	}
	cmd.Instruction = strings.Join(parts, " ")
}

func (d *Detector) startsIntern(norm []string, j int) bool {
	for _, p := range d.phrases {
		if p.kind == Intern && matchTokens(norm, j, p.tokens) {
			return true
		}
	}
	return false
}

// matchTokens reports whether tokens occur contiguously in norm at i. Blank
// words (empty normalized text) never match.
func matchTokens(norm []string, i int, tokens []string) bool {
	if i+len(tokens) > len(norm) {
		return false
	}
	for k, tok := range tokens {
		if norm[i+k] == "" || norm[i+k] != tok {
			return false
		}
	}
	return true
}
