package sfx

import (
	"context"
	"math"
	"testing"

	"github.com/MrWong99/castmix/internal/command"
	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/internal/degrade"
	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/internal/reconstruct"
	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/timeline"
)

var kHz = audio.Format{SampleRate: 1000, Channels: 1, SampleWidth: 2}

func words() []timeline.Word {
	return []timeline.Word{
		{Text: "and", Start: 0.0, End: 0.2},
		{Text: "drum", Start: 0.3, End: 0.5},
		{Text: "roll", Start: 0.5, End: 0.7},
		{Text: "winner", Start: 1.0, End: 1.4},
	}
}

func detect(t *testing.T, clip string) []command.Command {
	t.Helper()
	cfg := config.Default().Cleanup
	cfg.SFX = []config.SFXEntry{{Phrase: "drum roll", Clip: clip, GainDB: -6}}
	return command.New(cfg).Detect(words(), command.Options{}).Commands
}

func TestSFX_CutsCueAndInsertsClip(t *testing.T) {
	t.Parallel()
	cmds := detect(t, "drumroll")

	tl, err := timeline.New(words())
	if err != nil {
		t.Fatal(err)
	}
	if n := Blank(tl, cmds); n != 2 {
		t.Fatalf("blanked %d words, want 2", n)
	}
	take, err := reconstruct.Build(audio.Silence(kHz, 2000), tl.Words())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// The cue [0.3, 0.7] is cut, leaving 1600 ms.
	if take.Audio.Frames() != 1600 {
		t.Fatalf("take frames = %d, want 1600", take.Audio.Frames())
	}

	warnings := degrade.New(nil)
	ex := NewExecutor(media.Static{"drumroll": audio.Silence(kHz, 500)}, warnings)
	effects, err := ex.Apply(context.Background(), take, words(), cmds)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(effects) != 1 || effects[0].Clip != "drumroll" {
		t.Fatalf("effects = %+v", effects)
	}
	r := effects[0].Region
	if math.Abs(r.Start-0.3) > 1e-9 || math.Abs(r.End-0.8) > 1e-9 {
		t.Errorf("region = %+v, want [0.3, 0.8]", r)
	}
	if take.Audio.Frames() != 2100 {
		t.Errorf("frames = %d, want 2100", take.Audio.Frames())
	}
	if got := take.Words[3].Start; math.Abs(got-1.1) > 1e-9 {
		t.Errorf("winner starts at %v, want 1.1", got)
	}
	if warnings.Len() != 0 {
		t.Errorf("warnings = %v", warnings.Warnings())
	}
}

func TestSFX_MissingClipWarns(t *testing.T) {
	t.Parallel()
	cmds := detect(t, "gone")
	take, err := reconstruct.Build(audio.Silence(kHz, 2000), words())
	if err != nil {
		t.Fatal(err)
	}
	warnings := degrade.New(nil)
	effects, err := NewExecutor(media.Static{}, warnings).Apply(context.Background(), take, words(), cmds)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(effects) != 0 || take.Audio.Frames() != 2000 {
		t.Errorf("effects = %+v, frames = %d", effects, take.Audio.Frames())
	}
	if w := warnings.Warnings(); len(w) != 1 || w[0].Kind != "clip_missing" {
		t.Errorf("warnings = %+v", w)
	}
}

func TestSFX_SameClipTwice(t *testing.T) {
	t.Parallel()
	ws := []timeline.Word{
		{Text: "applause", Start: 0.5, End: 1.0},
		{Text: "and", Start: 1.2, End: 1.4},
		{Text: "applause", Start: 9.5, End: 10.0},
	}
	cfg := config.Default().Cleanup
	cfg.SFX = []config.SFXEntry{{Phrase: "applause", Clip: "applause"}}
	cmds := command.New(cfg).Detect(ws, command.Options{}).Commands

	take, err := reconstruct.Build(audio.Silence(kHz, 12_000), ws)
	if err != nil {
		t.Fatal(err)
	}
	ex := NewExecutor(media.Static{"applause": audio.Silence(kHz, 1000)}, degrade.New(nil))
	effects, err := ex.Apply(context.Background(), take, ws, cmds)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(effects) != 2 {
		t.Fatalf("effects = %+v", effects)
	}
	if effects[0].Region.Label == effects[1].Region.Label {
		t.Fatalf("both effects share label %q", effects[0].Region.Label)
	}
	for _, e := range effects {
		var found bool
		for _, r := range take.Inserted {
			if r.Label == e.Region.Label {
				found = true
				if math.Abs(r.Start-e.Region.Start) > 1e-9 {
					t.Errorf("effect %d region %+v, take has %+v", e.Ordinal, e.Region, r)
				}
			}
		}
		if !found {
			t.Errorf("effect %d label %q not in take", e.Ordinal, e.Region.Label)
		}
	}
}
