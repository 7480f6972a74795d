// Package template lays out a show template around a processed take and
// renders the final episode mix.
//
// A [Template] lists segments in playback order (intro, content, outro,
// synthesized announcements, static stingers) and background-music rules
// that follow segment kinds. [Mixer.Mix] resolves every segment to audio,
// places them sequentially on the output timeline, adds the music beds and
// masters the result.
package template

import (
	"errors"
	"fmt"
	"slices"
)

// Kind classifies a template segment.
type Kind string

const (
	Content Kind = "content"
	Intro   Kind = "intro"
	Outro   Kind = "outro"
	TTS     Kind = "tts"
	Static  Kind = "static"
)

// Kinds lists every segment kind.
var Kinds = []Kind{Content, Intro, Outro, TTS, Static}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool { return slices.Contains(Kinds, k) }

// Template is a reusable show layout.
type Template struct {
	Name            string      `yaml:"name" toml:"name" json:"name"`
	Segments        []Segment   `yaml:"segments" toml:"segments" json:"segments"`
	BackgroundMusic []MusicRule `yaml:"background_music" toml:"background_music" json:"background_music"`
	Timing          Timing      `yaml:"timing" toml:"timing" json:"timing"`
}

// Segment is one entry of the layout.
type Segment struct {
	Kind  Kind   `yaml:"kind" toml:"kind" json:"kind"`
	Label string `yaml:"label" toml:"label" json:"label"`

	// Source is the media name of intro, outro and static segments.
	Source string `yaml:"source" toml:"source" json:"source"`

	// Script is spoken for tts segments. Intro and outro segments without a
	// source, or whose source cannot be resolved, are synthesized from their
	// script too.
	Script string `yaml:"script" toml:"script" json:"script"`

	// Voice overrides the default voice ID for this segment.
	Voice string `yaml:"voice" toml:"voice" json:"voice"`
}

// MusicRule puts a looped music bed under every placement of the listed
// kinds.
type MusicRule struct {
	Clip         string  `yaml:"clip" toml:"clip" json:"clip"`
	ApplyTo      []Kind  `yaml:"apply_to" toml:"apply_to" json:"apply_to"`
	VolumeDB     float64 `yaml:"volume_db" toml:"volume_db" json:"volume_db"`
	FadeInS      float64 `yaml:"fade_in_s" toml:"fade_in_s" json:"fade_in_s"`
	FadeOutS     float64 `yaml:"fade_out_s" toml:"fade_out_s" json:"fade_out_s"`
	StartOffsetS float64 `yaml:"start_offset_s" toml:"start_offset_s" json:"start_offset_s"`
	EndOffsetS   float64 `yaml:"end_offset_s" toml:"end_offset_s" json:"end_offset_s"`
}

// Timing shifts segments relative to the end of the previous segment. A
// negative offset overlaps the previous segment.
type Timing struct {
	ContentStartOffsetS *float64 `yaml:"content_start_offset_s" toml:"content_start_offset_s" json:"content_start_offset_s,omitempty"`
	OutroStartOffsetS   *float64 `yaml:"outro_start_offset_s" toml:"outro_start_offset_s" json:"outro_start_offset_s,omitempty"`
}

// Validate reports every structural problem at once.
func (t *Template) Validate() error {
	var errs []error
	if t.Name == "" {
		errs = append(errs, errors.New("template: name is required"))
	}
	for i, s := range t.Segments {
		switch {
		case !s.Kind.IsValid():
			errs = append(errs, fmt.Errorf("template: segments[%d]: unknown kind %q", i, s.Kind))
		case s.Kind == Static && s.Source == "":
			errs = append(errs, fmt.Errorf("template: segments[%d]: static segment needs a source", i))
		case (s.Kind == Intro || s.Kind == Outro) && s.Source == "" && s.Script == "":
			errs = append(errs, fmt.Errorf("template: segments[%d]: %s needs a source or a script", i, s.Kind))
		}
	}
	for i, m := range t.BackgroundMusic {
		if m.Clip == "" {
			errs = append(errs, fmt.Errorf("template: background_music[%d]: clip is required", i))
		}
		if len(m.ApplyTo) == 0 {
			errs = append(errs, fmt.Errorf("template: background_music[%d]: apply_to is empty", i))
		}
		for _, k := range m.ApplyTo {
			if !k.IsValid() {
				errs = append(errs, fmt.Errorf("template: background_music[%d]: unknown kind %q", i, k))
			}
		}
		if m.FadeInS < 0 || m.FadeOutS < 0 {
			errs = append(errs, fmt.Errorf("template: background_music[%d]: fades must be non-negative", i))
		}
	}
	return errors.Join(errs...)
}

// AssetMissingError reports a static segment or music clip that could not
// be loaded. The mix continues without it.
type AssetMissingError struct {
	// Name is the media name.
	Name string

	// Use is "segment" or "music".
	Use string

	Err error
}

func (e *AssetMissingError) Error() string {
	return fmt.Sprintf("template: %s asset %q missing: %v", e.Use, e.Name, e.Err)
}

func (e *AssetMissingError) Unwrap() error { return e.Err }
