package template

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/internal/degrade"
	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/audio/mixer"
	"github.com/MrWong99/castmix/pkg/provider/tts"
)

const stage = "template"

// prefetchLimit bounds concurrent asset loads.
const prefetchLimit = 4

// Placement is a segment positioned on the output timeline.
type Placement struct {
	Kind  Kind          `json:"kind"`
	Label string        `json:"label"`
	Audio audio.Segment `json:"-"`

	// StartMs and EndMs are absolute output positions.
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

// Bed is a music rule interval handed to the mix buffer.
type Bed struct {
	// Rule is the index of the music rule in the template.
	Rule    int    `json:"rule"`
	Clip    string `json:"clip"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
}

// Output is a rendered episode.
type Output struct {
	Audio      audio.Segment
	Placements []Placement
	Music      []Bed

	// ContentStartMs is where the take begins on the output timeline, or -1
	// when no content was placed.
	ContentStartMs int64
}

// Mixer renders templates. It is safe for concurrent use; every call owns
// its own mix buffer.
type Mixer struct {
	cfg      config.AudioConfig
	media    media.Resolver
	tts      tts.Provider
	voice    tts.VoiceProfile
	warnings *degrade.Log
}

// Option configures a [Mixer].
type Option func(*Mixer)

// WithTTS enables tts segments, spoken with voice unless a segment names its
// own voice ID.
func WithTTS(p tts.Provider, voice tts.VoiceProfile) Option {
	return func(m *Mixer) {
		m.tts = p
		m.voice = voice
	}
}

// WithWarnings sets the degradation log.
func WithWarnings(l *degrade.Log) Option {
	return func(m *Mixer) { m.warnings = l }
}

// NewMixer creates a mixer producing audio in cfg's master format.
func NewMixer(cfg config.AudioConfig, resolver media.Resolver, opts ...Option) *Mixer {
	m := &Mixer{cfg: cfg, media: resolver}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Mix renders tpl around content.
func (m *Mixer) Mix(ctx context.Context, tpl *Template, content audio.Segment) (*Output, error) {
	f := m.cfg.Format()
	assets, err := m.prefetch(ctx, tpl)
	if err != nil {
		return nil, err
	}

	segs := withContent(tpl.Segments)
	out := &Output{ContentStartMs: -1}
	var cursor int64
	for _, s := range segs {
		a, ok, err := m.render(ctx, s, content, assets)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		start := cursor
		switch {
		case s.Kind == Content && tpl.Timing.ContentStartOffsetS != nil:
			start += secondsToMs(*tpl.Timing.ContentStartOffsetS)
		case s.Kind == Outro && tpl.Timing.OutroStartOffsetS != nil:
			start += secondsToMs(*tpl.Timing.OutroStartOffsetS)
		}
		if start < 0 {
			a = a.SliceMs(-start, a.DurationMs())
			start = 0
		}
		p := Placement{Kind: s.Kind, Label: labelOf(s), Audio: a, StartMs: start, EndMs: start + a.DurationMs()}
		if s.Kind == Content {
			out.ContentStartMs = p.StartMs
		}
		out.Placements = append(out.Placements, p)
		cursor = p.EndMs
	}

	out.Music = m.beds(ctx, tpl.BackgroundMusic, out.Placements, assets)

	endMs := int64(0)
	for _, p := range out.Placements {
		endMs = max(endMs, p.EndMs)
	}
	for _, b := range out.Music {
		endMs = max(endMs, b.EndMs)
	}
	policy := m.cfg.Policy()
	if err := policy.CheckBudget("episode", endMs, f); err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	buf, err := mixer.New(f, endMs, mixer.WithPolicy(policy))
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	for _, p := range out.Placements {
		if err := buf.Overlay(p.Audio, p.StartMs, p.Label); err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}
	}
	for i, b := range out.Music {
		rule := tpl.BackgroundMusic[b.Rule]
		if err := buf.OverlayMusic(mixer.Music{
			Label:     fmt.Sprintf("music %d (%s)", i, b.Clip),
			Clip:      assets[b.Clip],
			StartMs:   b.StartMs,
			EndMs:     b.EndMs,
			GainDB:    rule.VolumeDB,
			FadeInMs:  secondsToMs(rule.FadeInS),
			FadeOutMs: secondsToMs(rule.FadeOutS),
		}); err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}
	}

	mix, err := buf.ToSegment(endMs)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	if !m.cfg.SkipMastering {
		mix = mix.NormalizePeak(m.cfg.PeakDBFS())
	}
	out.Audio = mix

	slog.InfoContext(ctx, "episode mixed",
		"template", tpl.Name,
		"placements", len(out.Placements),
		"music_beds", len(out.Music),
		"duration_ms", mix.DurationMs(),
		"peak_dbfs", roundDB(mix.PeakDBFS()),
	)
	return out, nil
}

// withContent returns segs with exactly one content segment: repeats are
// dropped and a missing one is inserted before the first outro, or appended.
func withContent(segs []Segment) []Segment {
	out := make([]Segment, 0, len(segs)+1)
	seen := false
	for i, s := range segs {
		if s.Kind != Content {
			out = append(out, s)
			continue
		}
		if seen {
			slog.Warn("duplicate content segment skipped", "index", i, "label", s.Label)
			continue
		}
		seen = true
		out = append(out, s)
	}
	if seen {
		return out
	}
	at := slices.IndexFunc(out, func(s Segment) bool { return s.Kind == Outro })
	if at < 0 {
		at = len(out)
	}
	slog.Info("template has no content segment, inserting one", "position", at)
	return slices.Insert(out, at, Segment{Kind: Content, Label: "content"})
}

// render resolves s to audio. ok is false when the segment is skipped.
func (m *Mixer) render(ctx context.Context, s Segment, content audio.Segment, assets map[string]audio.Segment) (audio.Segment, bool, error) {
	switch {
	case s.Kind == Content:
		return content, true, nil
	case s.Kind == TTS || (s.Source == "" && s.Script != ""):
		return m.speak(ctx, s), true, nil
	default:
		a, ok := assets[s.Source]
		if !ok && (s.Kind == Intro || s.Kind == Outro) && strings.TrimSpace(s.Script) != "" {
			return m.speak(ctx, s), true, nil
		}
		return a, ok, nil
	}
}

// speak synthesizes a script, falling back to silence.
func (m *Mixer) speak(ctx context.Context, s Segment) audio.Segment {
	fallback := audio.Silence(m.cfg.Format(), m.ttsFallbackMs())
	if strings.TrimSpace(s.Script) == "" {
		m.warnings.Warn(ctx, stage, "empty_script", nil, "segment %q has no script, inserting silence", labelOf(s))
		return fallback
	}
	if m.tts == nil {
		m.warnings.Warn(ctx, stage, "no_tts", nil, "segment %q needs tts but none is configured", labelOf(s))
		return fallback
	}
	v := m.voice
	if s.Voice != "" {
		v.ID = s.Voice
	}
	seg, err := m.tts.Synthesize(ctx, s.Script, v)
	if err != nil {
		m.warnings.Warn(ctx, stage, "synthesis_failed", err, "segment %q synthesis failed, inserting silence", labelOf(s))
		return fallback
	}
	return seg
}

func (m *Mixer) ttsFallbackMs() int64 {
	if m.cfg.TTSFallbackMs > 0 {
		return m.cfg.TTSFallbackMs
	}
	return config.DefaultTTSFallbackMs
}

// prefetch loads every referenced asset concurrently. Missing assets are
// reported as warnings and left out of the map.
func (m *Mixer) prefetch(ctx context.Context, tpl *Template) (map[string]audio.Segment, error) {
	uses := make(map[string]string)
	var names []string
	add := func(name, use string) {
		if _, ok := uses[name]; !ok {
			uses[name] = use
			names = append(names, name)
		}
	}
	for _, s := range tpl.Segments {
		if s.Kind != Content && s.Kind != TTS && s.Source != "" {
			add(s.Source, "segment")
		}
	}
	for _, r := range tpl.BackgroundMusic {
		add(r.Clip, "music")
	}

	var (
		mu      sync.Mutex
		assets  = make(map[string]audio.Segment, len(names))
		missing []*AssetMissingError
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchLimit)
	for _, name := range names {
		g.Go(func() error {
			if m.media == nil {
				mu.Lock()
				missing = append(missing, &AssetMissingError{Name: name, Use: uses[name], Err: errors.New("no media resolver")})
				mu.Unlock()
				return nil
			}
			seg, err := m.media.Resolve(gctx, name)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				missing = append(missing, &AssetMissingError{Name: name, Use: uses[name], Err: err})
				mu.Unlock()
				return nil
			}
			mu.Lock()
			assets[name] = seg
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("template: prefetch: %w", err)
	}

	slices.SortFunc(missing, func(a, b *AssetMissingError) int { return cmp.Compare(a.Name, b.Name) })
	for _, e := range missing {
		m.warnings.Warn(ctx, stage, "asset_missing", e, "%s asset %q skipped", e.Use, e.Name)
	}
	return assets, nil
}

// beds computes the music intervals of every rule: placements of the rule's
// kinds are merged into non-overlapping intervals and shifted by the rule
// offsets. Intervals that collapse are dropped.
func (m *Mixer) beds(ctx context.Context, rules []MusicRule, placements []Placement, assets map[string]audio.Segment) []Bed {
	var out []Bed
	for i, r := range rules {
		clip, ok := assets[r.Clip]
		if !ok {
			continue
		}
		if clip.IsEmpty() {
			m.warnings.Warn(ctx, stage, "asset_missing", mixer.ErrEmptyClip, "music clip %q is empty", r.Clip)
			continue
		}
		var spans [][2]int64
		for _, p := range placements {
			if slices.Contains(r.ApplyTo, p.Kind) && p.EndMs > p.StartMs {
				spans = append(spans, [2]int64{p.StartMs, p.EndMs})
			}
		}
		for _, s := range mergeIntervals(spans) {
			start := max(0, s[0]+secondsToMs(r.StartOffsetS))
			end := s[1] + secondsToMs(r.EndOffsetS)
			if end <= start {
				continue
			}
			out = append(out, Bed{Rule: i, Clip: r.Clip, StartMs: start, EndMs: end})
		}
	}
	return out
}

func mergeIntervals(spans [][2]int64) [][2]int64 {
	slices.SortFunc(spans, func(a, b [2]int64) int { return cmp.Compare(a[0], b[0]) })
	var out [][2]int64
	for _, s := range spans {
		if n := len(out); n > 0 && s[0] <= out[n-1][1] {
			out[n-1][1] = max(out[n-1][1], s[1])
			continue
		}
		out = append(out, s)
	}
	return out
}

func labelOf(s Segment) string {
	if s.Label != "" {
		return s.Label
	}
	if s.Source != "" {
		return s.Source
	}
	return string(s.Kind)
}

func secondsToMs(s float64) int64 { return int64(math.Round(s * 1000)) }

func roundDB(db float64) float64 {
	if math.IsInf(db, 0) {
		return db
	}
	return math.Round(db*100) / 100
}
