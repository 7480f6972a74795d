package template

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/internal/degrade"
	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/audio/mixer"
	"github.com/MrWong99/castmix/pkg/provider/tts"
	ttsmock "github.com/MrWong99/castmix/pkg/provider/tts/mock"
)

var kHz = audio.Format{SampleRate: 1000, Channels: 1, SampleWidth: 2}

func audioConfig() config.AudioConfig {
	return config.AudioConfig{FrameRate: 1000, Channels: 1, SampleWidth: 2, SkipMastering: true, TTSFallbackMs: 500}
}

func level(t *testing.T, ms int, v int16) audio.Segment {
	t.Helper()
	data := make([]byte, ms*2)
	for i := range ms {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	seg, err := audio.NewSegment(kHz, data)
	if err != nil {
		t.Fatal(err)
	}
	return seg
}

func sampleAt(seg audio.Segment, ms int) int16 {
	return int16(binary.LittleEndian.Uint16(seg.Data()[ms*2:]))
}

func ptr(v float64) *float64 { return &v }

const yamlTemplate = `
name: weekly
segments:
  - kind: intro
    source: intro
  - kind: content
  - kind: outro
    source: outro
background_music:
  - clip: bed
    apply_to: [intro, outro]
    volume_db: -12
    fade_in_s: 0.5
timing:
  content_start_offset_s: -0.5
`

const tomlTemplate = `
name = "weekly"

[[segments]]
kind = "intro"
source = "intro"

[[segments]]
kind = "content"

[[segments]]
kind = "outro"
source = "outro"

[[background_music]]
clip = "bed"
apply_to = ["intro", "outro"]
volume_db = -12.0
fade_in_s = 0.5

[timing]
content_start_offset_s = -0.5
`

const jsonTemplate = `{
  "name": "weekly",
  "segments": [
    {"kind": "intro", "source": "intro"},
    {"kind": "content"},
    {"kind": "outro", "source": "outro"}
  ],
  "background_music": [
    {"clip": "bed", "apply_to": ["intro", "outro"], "volume_db": -12, "fade_in_s": 0.5}
  ],
  "timing": {"content_start_offset_s": -0.5}
}`

func TestParse_AllFormatsAgree(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format Format
		data   string
	}{
		{YAML, yamlTemplate},
		{TOML, tomlTemplate},
		{JSON, jsonTemplate},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			t.Parallel()
			tpl, err := Parse([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if tpl.Name != "weekly" || len(tpl.Segments) != 3 || tpl.Segments[2].Source != "outro" {
				t.Errorf("template = %+v", tpl)
			}
			if len(tpl.BackgroundMusic) != 1 {
				t.Fatalf("music = %+v", tpl.BackgroundMusic)
			}
			m := tpl.BackgroundMusic[0]
			if m.VolumeDB != -12 || m.FadeInS != 0.5 || len(m.ApplyTo) != 2 || m.ApplyTo[1] != Outro {
				t.Errorf("music rule = %+v", m)
			}
			if tpl.Timing.ContentStartOffsetS == nil || *tpl.Timing.ContentStartOffsetS != -0.5 {
				t.Errorf("timing = %+v", tpl.Timing)
			}
			if tpl.Timing.OutroStartOffsetS != nil {
				t.Error("outro offset should be unset")
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		format  Format
		data    string
		wantErr string
	}{
		{"unknown yaml field", YAML, "name: x\nsegmentz: []\n", "segmentz"},
		{"unknown json field", JSON, `{"name":"x","extra":1}`, "extra"},
		{"unknown toml field", TOML, "name = \"x\"\nextra = 1\n", "extra"},
		{"missing name", YAML, "segments: []\n", "name is required"},
		{"bad kind", YAML, "name: x\nsegments:\n  - kind: jingle\n", "unknown kind"},
		{"static without source", YAML, "name: x\nsegments:\n  - kind: static\n", "needs a source"},
		{"music without clip", YAML, "name: x\nbackground_music:\n  - apply_to: [intro]\n", "clip is required"},
		{"music bad kind", YAML, "name: x\nbackground_music:\n  - clip: a\n    apply_to: [nope]\n", "unknown kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.data), tt.format)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ByExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "show.toml")
	if err := os.WriteFile(path, []byte(tomlTemplate), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(dir, "show.ini")); err == nil {
		t.Fatal("Load accepted an unknown extension")
	}
}

func TestMix_LayoutAndOffsets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		timing Timing
		want   [][2]int64
	}{
		{"sequential", Timing{}, [][2]int64{{0, 1000}, {1000, 3000}, {3000, 3500}}},
		{"content overlaps intro", Timing{ContentStartOffsetS: ptr(-0.25)}, [][2]int64{{0, 1000}, {750, 2750}, {2750, 3250}}},
		{"outro gap", Timing{OutroStartOffsetS: ptr(1)}, [][2]int64{{0, 1000}, {1000, 3000}, {4000, 4500}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tpl := &Template{
				Name: "t",
				Segments: []Segment{
					{Kind: Intro, Source: "intro"},
					{Kind: Content},
					{Kind: Outro, Source: "outro"},
				},
				Timing: tt.timing,
			}
			assets := media.Static{"intro": level(t, 1000, 100), "outro": level(t, 500, 100)}
			out, err := NewMixer(audioConfig(), assets).Mix(context.Background(), tpl, level(t, 2000, 100))
			if err != nil {
				t.Fatalf("Mix: %v", err)
			}
			if len(out.Placements) != len(tt.want) {
				t.Fatalf("placements = %+v", out.Placements)
			}
			for i, p := range out.Placements {
				if p.StartMs != tt.want[i][0] || p.EndMs != tt.want[i][1] {
					t.Errorf("placement %d (%s) = [%d, %d], want %v", i, p.Kind, p.StartMs, p.EndMs, tt.want[i])
				}
			}
			if got := out.Audio.DurationMs(); got != tt.want[len(tt.want)-1][1] {
				t.Errorf("mix duration = %d ms", got)
			}
			if out.ContentStartMs != tt.want[1][0] {
				t.Errorf("content start = %d", out.ContentStartMs)
			}
		})
	}
}

func TestMix_OverlapsSum(t *testing.T) {
	t.Parallel()
	tpl := &Template{
		Name:     "t",
		Segments: []Segment{{Kind: Intro, Source: "intro"}, {Kind: Content}},
		Timing:   Timing{ContentStartOffsetS: ptr(-0.5)},
	}
	out, err := NewMixer(audioConfig(), media.Static{"intro": level(t, 1000, 100)}).
		Mix(context.Background(), tpl, level(t, 1000, 50))
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if got := sampleAt(out.Audio, 250); got != 100 {
		t.Errorf("intro only sample = %d, want 100", got)
	}
	if got := sampleAt(out.Audio, 750); got != 150 {
		t.Errorf("overlap sample = %d, want 150", got)
	}
}

func TestMix_NegativeStartTrimsLeadIn(t *testing.T) {
	t.Parallel()
	content := audio.Concat(kHz, level(t, 300, 7), level(t, 700, 9))
	tpl := &Template{Name: "t", Segments: []Segment{{Kind: Content}}, Timing: Timing{ContentStartOffsetS: ptr(-0.3)}}
	out, err := NewMixer(audioConfig(), nil).Mix(context.Background(), tpl, content)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	p := out.Placements[0]
	if p.StartMs != 0 || p.EndMs != 700 {
		t.Errorf("placement = [%d, %d], want [0, 700]", p.StartMs, p.EndMs)
	}
	if got := sampleAt(out.Audio, 0); got != 9 {
		t.Errorf("first sample = %d, want lead-in trimmed (9)", got)
	}
}

func TestMix_ContentCorrection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		segments []Segment
		want     []Kind
	}{
		{"inserted before outro", []Segment{{Kind: Intro, Source: "a"}, {Kind: Outro, Source: "a"}}, []Kind{Intro, Content, Outro}},
		{"appended without outro", []Segment{{Kind: Intro, Source: "a"}}, []Kind{Intro, Content}},
		{"duplicates skipped", []Segment{{Kind: Content}, {Kind: Static, Source: "a"}, {Kind: Content}}, []Kind{Content, Static}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tpl := &Template{Name: "t", Segments: tt.segments}
			out, err := NewMixer(audioConfig(), media.Static{"a": level(t, 100, 1)}).
				Mix(context.Background(), tpl, level(t, 100, 1))
			if err != nil {
				t.Fatalf("Mix: %v", err)
			}
			var got []Kind
			for _, p := range out.Placements {
				got = append(got, p.Kind)
			}
			if strings.Join(kindsToStrings(got), ",") != strings.Join(kindsToStrings(tt.want), ",") {
				t.Errorf("kinds = %v, want %v", got, tt.want)
			}
		})
	}
}

func kindsToStrings(ks []Kind) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = string(k)
	}
	return out
}

func TestMix_MusicBeds(t *testing.T) {
	t.Parallel()
	tpl := &Template{
		Name: "t",
		Segments: []Segment{
			{Kind: Intro, Source: "intro"},
			{Kind: Static, Source: "sting"},
			{Kind: Content},
			{Kind: Outro, Source: "outro"},
		},
		BackgroundMusic: []MusicRule{
			{Clip: "bed", ApplyTo: []Kind{Intro, Static}, StartOffsetS: 0.1, EndOffsetS: 0.5},
			{Clip: "bed", ApplyTo: []Kind{Outro}, StartOffsetS: 0.4, EndOffsetS: -0.2},
		},
	}
	assets := media.Static{
		"intro": level(t, 1000, 0),
		"sting": level(t, 200, 0),
		"outro": level(t, 500, 0),
		"bed":   level(t, 100, 10),
	}
	out, err := NewMixer(audioConfig(), assets).Mix(context.Background(), tpl, level(t, 1000, 0))
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	// Intro and sting merge into [0, 1200]; offsets give [100, 1700]. The
	// outro [2200, 2700] collapses to [2600, 2500] and is dropped.
	if len(out.Music) != 1 {
		t.Fatalf("beds = %+v", out.Music)
	}
	if b := out.Music[0]; b.StartMs != 100 || b.EndMs != 1700 || b.Rule != 0 {
		t.Errorf("bed = %+v", b)
	}
	if got := sampleAt(out.Audio, 50); got != 0 {
		t.Errorf("before bed = %d, want 0", got)
	}
	if got := sampleAt(out.Audio, 1500); got != 10 {
		t.Errorf("inside bed = %d, want 10", got)
	}
	if got := sampleAt(out.Audio, 1800); got != 0 {
		t.Errorf("after bed = %d, want 0", got)
	}
}

func TestMix_MissingAssetsSkipped(t *testing.T) {
	t.Parallel()
	tpl := &Template{
		Name:            "t",
		Segments:        []Segment{{Kind: Static, Source: "gone"}, {Kind: Content}},
		BackgroundMusic: []MusicRule{{Clip: "nobed", ApplyTo: []Kind{Content}}},
	}
	warnings := degrade.New(nil)
	out, err := NewMixer(audioConfig(), media.Static{}, WithWarnings(warnings)).
		Mix(context.Background(), tpl, level(t, 300, 1))
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if len(out.Placements) != 1 || len(out.Music) != 0 {
		t.Errorf("placements = %+v, music = %+v", out.Placements, out.Music)
	}
	ws := warnings.Warnings()
	if len(ws) != 2 {
		t.Fatalf("warnings = %+v, want 2", ws)
	}
	var missing *AssetMissingError
	if !errors.As(ws[0].Err, &missing) || missing.Name != "gone" || missing.Use != "segment" {
		t.Errorf("first warning = %+v", ws[0])
	}
	if !media.IsNotFound(ws[1].Err) {
		t.Errorf("second warning should wrap a not-found error: %v", ws[1].Err)
	}
}

func TestMix_MissingIntroFallsBackToScript(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		seg       Segment
		wantFirst Kind
		wantMs    int64
	}{
		{"intro speaks script", Segment{Kind: Intro, Source: "gone", Script: "welcome back everyone"}, Intro, 300},
		{"outro speaks script", Segment{Kind: Outro, Source: "gone", Script: "bye"}, Content, 100},
		{"static without script is skipped", Segment{Kind: Static, Source: "gone", Script: "ignored"}, Content, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			segs := []Segment{tt.seg, {Kind: Content}}
			if tt.seg.Kind == Outro {
				segs = []Segment{{Kind: Content}, tt.seg}
			}
			p := &ttsmock.Provider{}
			warnings := degrade.New(nil)
			m := NewMixer(audioConfig(), media.Static{}, WithTTS(p, tts.VoiceProfile{ID: "default"}), WithWarnings(warnings))
			out, err := m.Mix(context.Background(), &Template{Name: "t", Segments: segs}, level(t, 200, 1))
			if err != nil {
				t.Fatalf("Mix: %v", err)
			}
			if out.Placements[0].Kind != tt.wantFirst {
				t.Errorf("first placement = %+v, want kind %s", out.Placements[0], tt.wantFirst)
			}
			var spoken int64
			for _, pl := range out.Placements {
				if pl.Kind == tt.seg.Kind {
					spoken = pl.EndMs - pl.StartMs
				}
			}
			if spoken != tt.wantMs {
				t.Errorf("%s placement length = %d ms, want %d", tt.seg.Kind, spoken, tt.wantMs)
			}
			if tt.wantMs > 0 && len(p.Calls()) != 1 {
				t.Errorf("tts calls = %d, want 1", len(p.Calls()))
			}
			var missing *AssetMissingError
			if ws := warnings.Warnings(); len(ws) == 0 || !errors.As(ws[0].Err, &missing) || missing.Name != "gone" {
				t.Errorf("warnings = %+v, want asset_missing for gone", ws)
			}
		})
	}
}

func TestMix_TTSSegments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		script     string
		provider   *ttsmock.Provider
		wantMs     int64
		wantWarned bool
	}{
		{"synthesized", "welcome to the show", &ttsmock.Provider{}, 400, false},
		{"empty script", "  ", &ttsmock.Provider{}, 500, true},
		{"synthesis failure", "hello", &ttsmock.Provider{SynthesizeErr: errors.New("quota")}, 500, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tpl := &Template{Name: "t", Segments: []Segment{{Kind: TTS, Script: tt.script, Voice: "host"}, {Kind: Content}}}
			warnings := degrade.New(nil)
			m := NewMixer(audioConfig(), nil, WithTTS(tt.provider, tts.VoiceProfile{ID: "default"}), WithWarnings(warnings))
			out, err := m.Mix(context.Background(), tpl, level(t, 100, 1))
			if err != nil {
				t.Fatalf("Mix: %v", err)
			}
			if got := out.Placements[0].EndMs; got != tt.wantMs {
				t.Errorf("tts placement length = %d ms, want %d", got, tt.wantMs)
			}
			if (warnings.Len() > 0) != tt.wantWarned {
				t.Errorf("warnings = %v", warnings.Warnings())
			}
			if calls := tt.provider.Calls(); len(calls) > 0 && calls[0].Voice.ID != "host" {
				t.Errorf("voice = %q, want segment voice", calls[0].Voice.ID)
			}
		})
	}
}

func TestMix_BudgetCheckedBeforeAllocation(t *testing.T) {
	t.Parallel()
	cfg := config.AudioConfig{FrameRate: 44100, Channels: 2, SampleWidth: 2, MaxBufferBytes: 1_000_000, SkipMastering: true}
	tpl := &Template{Name: "t", Segments: []Segment{{Kind: Content}}}
	_, err := NewMixer(cfg, nil).Mix(context.Background(), tpl, audio.Silence(audio.CD, 20_000))
	var tooLarge *mixer.TimelineTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err = %v, want TimelineTooLargeError", err)
	}
	if tooLarge.NeededBytes != 3_528_000 || tooLarge.EndMs != 20_000 {
		t.Errorf("error = %+v", tooLarge)
	}
}

func TestMix_Mastering(t *testing.T) {
	t.Parallel()
	cfg := audioConfig()
	cfg.SkipMastering = false
	cfg.MasterPeakDBFS = ptr(-6)
	tpl := &Template{Name: "t", Segments: []Segment{{Kind: Content}}}
	out, err := NewMixer(cfg, nil).Mix(context.Background(), tpl, level(t, 100, 1000))
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if got := out.Audio.PeakDBFS(); math.Abs(got-(-6)) > 0.01 {
		t.Errorf("peak = %.3f dBFS, want -6", got)
	}
}

// countingResolver counts resolutions per name.
type countingResolver struct {
	media.Static
	calls atomic.Int32
}

func (c *countingResolver) Resolve(ctx context.Context, name string) (audio.Segment, error) {
	c.calls.Add(1)
	return c.Static.Resolve(ctx, name)
}

func TestMix_PrefetchResolvesEachAssetOnce(t *testing.T) {
	t.Parallel()
	r := &countingResolver{Static: media.Static{"sting": level(t, 100, 1), "bed": level(t, 100, 1)}}
	tpl := &Template{
		Name: "t",
		Segments: []Segment{
			{Kind: Static, Source: "sting"},
			{Kind: Content},
			{Kind: Static, Source: "sting"},
		},
		BackgroundMusic: []MusicRule{
			{Clip: "bed", ApplyTo: []Kind{Content}},
			{Clip: "bed", ApplyTo: []Kind{Static}},
		},
	}
	if _, err := NewMixer(audioConfig(), r).Mix(context.Background(), tpl, level(t, 100, 1)); err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if got := r.calls.Load(); got != 2 {
		t.Errorf("resolutions = %d, want 2", got)
	}
}

func TestMix_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tpl := &Template{Name: "t", Segments: []Segment{{Kind: Static, Source: "x"}}}
	if _, err := NewMixer(audioConfig(), media.Static{}).Mix(ctx, tpl, level(t, 10, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
