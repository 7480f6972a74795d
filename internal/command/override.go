package command

import (
	"strings"

	"github.com/MrWong99/castmix/pkg/timeline"
)

// Override is a human-approved response to an intern command. When attached
// it replaces fresh synthesis.
type Override struct {
	// Ordinal, when set, attaches the override to the intern command with
	// that ordinal (zero-based).
	Ordinal *int `json:"ordinal,omitempty" yaml:"ordinal,omitempty"`

	// Instruction is matched against the spoken instruction when Ordinal is
	// unset. Comparison uses normalized tokens.
	Instruction string `json:"instruction" yaml:"instruction"`

	// Response is the approved answer text.
	Response string `json:"response" yaml:"response"`

	// AudioRef names pre-rendered response audio for the media resolver.
	// Empty means the response is synthesized with VoiceID.
	AudioRef string `json:"audio_ref,omitempty" yaml:"audio_ref,omitempty"`

	// VoiceID selects the synthesis voice for Response.
	VoiceID string `json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
}

// attachOverrides assigns overrides to intern commands, by ordinal first and
// then by instruction text. Each override is used at most once. It returns
// the number of overrides left unattached.
func attachOverrides(cmds []Command, overrides []Override) int {
	if len(overrides) == 0 {
		return 0
	}
	used := make([]bool, len(overrides))

	for i := range cmds {
		c := &cmds[i]
		if c.Kind != Intern {
			continue
		}
		for k, o := range overrides {
			if !used[k] && o.Ordinal != nil && *o.Ordinal == c.Ordinal {
				c.Override = &overrides[k]
				used[k] = true
				break
			}
		}
	}
	for i := range cmds {
		c := &cmds[i]
		if c.Kind != Intern || c.Override != nil {
			continue
		}
		key := instructionKey(c.Instruction)
		for k, o := range overrides {
			if !used[k] && o.Ordinal == nil && key != "" && instructionKey(o.Instruction) == key {
				c.Override = &overrides[k]
				used[k] = true
				break
			}
		}
	}

	unused := 0
	for _, u := range used {
		if !u {
			unused++
		}
	}
	return unused
}

func instructionKey(s string) string {
	return strings.Join(timeline.Tokens(s), " ")
}
