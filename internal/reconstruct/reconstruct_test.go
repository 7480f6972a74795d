package reconstruct

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/timeline"
)

var kHz = audio.Format{SampleRate: 1000, Channels: 1, SampleWidth: 2}

// ramp returns ms frames whose sample value is the frame index, so every
// kept frame identifies its source position.
func ramp(t *testing.T, ms int) audio.Segment {
	t.Helper()
	data := make([]byte, ms*2)
	for i := range ms {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(i))
	}
	seg, err := audio.NewSegment(kHz, data)
	if err != nil {
		t.Fatalf("NewSegment: %v", err)
	}
	return seg
}

func sample(seg audio.Segment, frame int) int {
	return int(binary.LittleEndian.Uint16(seg.Data()[frame*2:]))
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestBuild_CutsBlankedRuns(t *testing.T) {
	t.Parallel()
	ws := []timeline.Word{
		{Text: "a", Start: 0.1, End: 0.2},
		{Text: "", Start: 0.3, End: 0.4},
		{Text: "", Start: 0.45, End: 0.5},
		{Text: "b", Start: 0.6, End: 0.7},
		{Text: "", Start: 0.8, End: 0.9, KeepAudio: true},
		{Text: "c", Start: 1.0, End: 1.1},
	}
	take, err := Build(ramp(t, 1500), ws)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(take.Cuts) != 1 {
		t.Fatalf("cuts = %+v, want one merged run", take.Cuts)
	}
	c := take.Cuts[0]
	if !near(c.Start, 0.3) || !near(c.End, 0.5) || c.FirstWord != 1 || c.LastWord != 2 {
		t.Errorf("cut = %+v", c)
	}
	if got := take.Audio.Frames(); got != 1300 {
		t.Errorf("frames = %d, want 1300", got)
	}
	// Frame 300 of the take is source frame 500, right after the cut.
	if got := sample(take.Audio, 299); got != 299 {
		t.Errorf("frame 299 = %d, want 299", got)
	}
	if got := sample(take.Audio, 300); got != 500 {
		t.Errorf("frame 300 = %d, want 500", got)
	}

	wantStarts := []float64{0.1, 0.3, 0.3, 0.4, 0.6, 0.8}
	for i, w := range take.Words {
		if !near(w.Start, wantStarts[i]) {
			t.Errorf("word %d start = %v, want %v", i, w.Start, wantStarts[i])
		}
	}
	if take.Words[1].Duration() != 0 {
		t.Errorf("cut word keeps duration %v", take.Words[1].Duration())
	}
}

func TestBuild_NoCutsKeepsAudio(t *testing.T) {
	t.Parallel()
	src := ramp(t, 400)
	take, err := Build(src, []timeline.Word{{Text: "x", Start: 0, End: 0.2}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !take.Audio.Equal(src) || len(take.Cuts) != 0 {
		t.Errorf("take changed without cuts: %d frames, %d cuts", take.Audio.Frames(), len(take.Cuts))
	}
}

func TestBuild_CutClampedToSource(t *testing.T) {
	t.Parallel()
	take, err := Build(ramp(t, 500), []timeline.Word{
		{Text: "a", Start: 0, End: 0.1},
		{Text: "", Start: 0.4, End: 0.9},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := take.Audio.Frames(); got != 400 {
		t.Errorf("frames = %d, want 400", got)
	}
}

func TestBuild_EmptySource(t *testing.T) {
	t.Parallel()
	if _, err := Build(audio.Silence(kHz, 0), nil); !errors.Is(err, ErrEmptyTake) {
		t.Fatalf("err = %v, want ErrEmptyTake", err)
	}
}

func TestTake_InsertShiftsLaterWords(t *testing.T) {
	t.Parallel()
	take, err := Build(ramp(t, 1000), []timeline.Word{
		{Text: "a", Start: 0.1, End: 0.3},
		{Text: "b", Start: 0.3, End: 0.5},
		{Text: "c", Start: 0.6, End: 0.8},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	r := take.Insert(0.3, audio.Silence(kHz, 200), "intern 0")
	if !near(r.Start, 0.3) || !near(r.End, 0.5) || r.Label != "intern 0" {
		t.Errorf("region = %+v", r)
	}
	if got := take.Audio.Frames(); got != 1200 {
		t.Errorf("frames = %d, want 1200", got)
	}
	want := []float64{0.1, 0.5, 0.8}
	for i, w := range take.Words {
		if !near(w.Start, want[i]) {
			t.Errorf("word %d start = %v, want %v", i, w.Start, want[i])
		}
	}
	if got := sample(take.Audio, 500); got != 300 {
		t.Errorf("frame after insert = %d, want source frame 300", got)
	}

	// A later insertion before the first region shifts the region.
	take.Insert(0.05, audio.Silence(kHz, 50), "sfx 0")
	if got := take.Inserted[1]; !near(got.Start, 0.35) || got.Label != "intern 0" {
		t.Errorf("shifted region = %+v", got)
	}
}

func TestTake_TimeAt(t *testing.T) {
	t.Parallel()
	take, err := Build(ramp(t, 2000), []timeline.Word{
		{Text: "a", Start: 0, End: 0.5},
		{Text: "", Start: 0.5, End: 1.0},
		{Text: "b", Start: 1.0, End: 1.5},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tests := []struct {
		name   string
		source float64
		want   float64
	}{
		{"before cut", 0.25, 0.25},
		{"inside cut maps to cut point", 0.75, 0.5},
		{"after cut", 1.2, 0.7},
	}
	for _, tt := range tests {
		if got := take.TimeAt(tt.source); !near(got, tt.want) {
			t.Errorf("%s: TimeAt(%v) = %v, want %v", tt.name, tt.source, got, tt.want)
		}
	}

	take.Insert(0.5, audio.Silence(kHz, 100), "x")
	if got := take.TimeAt(1.2); !near(got, 0.8) {
		t.Errorf("TimeAt after insert = %v, want 0.8", got)
	}
}
