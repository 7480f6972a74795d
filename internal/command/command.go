// Package command finds spoken editing cues in a word timeline.
//
// A [Detector] scans the words once and returns a [Detection]: one [Command]
// per trigger occurrence plus counts per [Kind]. Four kinds exist. Fillers
// are cut outright, the rollback keyword ("flubber") undoes a failed take,
// the voice-command keyword ("intern") asks for a spoken response and SFX
// phrases drop in a sound effect. Matching works on normalized tokens (see
// [timeline.Normalize]) so case and punctuation never matter.
package command

import (
	"github.com/MrWong99/castmix/pkg/timeline"
)

// Kind classifies a command.
type Kind string

const (
	Filler  Kind = "filler"
	Flubber Kind = "flubber"
	Intern  Kind = "intern"
	SFX     Kind = "sfx"
)

// Kinds lists every kind in detection priority order.
var Kinds = []Kind{Intern, Flubber, SFX, Filler}

// Command is one detected trigger occurrence.
type Command struct {
	Kind Kind `json:"kind"`

	// Ordinal counts commands of the same kind from zero.
	Ordinal int `json:"ordinal"`

	// TriggerIndex and TriggerLen locate the matched keyword or phrase.
	TriggerIndex int `json:"trigger_index"`
	TriggerLen   int `json:"trigger_len"`

	// Phrase is the configured phrase that matched.
	Phrase string `json:"phrase"`

	// Fuzzy marks a keyword matched phonetically rather than exactly.
	Fuzzy bool `json:"fuzzy,omitempty"`

	// Context is the word range the command acts on. For intern commands it
	// is the instruction context (trigger through end marker); for flubber
	// commands the lookback window through the trigger; otherwise the
	// trigger itself.
	Context timeline.Span `json:"context"`

	// Mode says whether resolving the command removes audio or only text.
	Mode timeline.Mode `json:"-"`

	// Instruction is the spoken instruction of an intern command, without
	// keyword and end marker.
	Instruction string `json:"instruction,omitempty"`

	// Terminated reports whether an intern instruction ended at an end
	// marker.
	Terminated bool `json:"terminated,omitempty"`

	// Clip and GainDB are the sound effect of an SFX command.
	Clip   string  `json:"clip,omitempty"`
	GainDB float64 `json:"gain_db,omitempty"`

	// Override is the pre-approved response attached to an intern command.
	Override *Override `json:"override,omitempty"`
}

// Trigger returns the span of the matched trigger.
func (c Command) Trigger() timeline.Span {
	return timeline.Span{Start: c.TriggerIndex, End: c.TriggerIndex + c.TriggerLen}
}

// Detection is the result of scanning a timeline.
type Detection struct {
	Commands []Command `json:"commands"`

	// Counts holds the number of commands per kind.
	Counts map[Kind]int `json:"counts"`

	// Skipped reports that detection did not run (mix-only input).
	Skipped bool `json:"skipped,omitempty"`

	// UnusedOverrides counts caller overrides that matched no command.
	UnusedOverrides int `json:"unused_overrides,omitempty"`
}

// Has reports whether at least one command of kind was found.
func (d Detection) Has(kind Kind) bool { return d.Counts[kind] > 0 }

// Of returns the commands of kind in timeline order.
func (d Detection) Of(kind Kind) []Command {
	var out []Command
	for _, c := range d.Commands {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Total returns the number of commands.
func (d Detection) Total() int { return len(d.Commands) }
