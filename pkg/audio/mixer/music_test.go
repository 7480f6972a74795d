package mixer_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/audio/mixer"
)

func rampClip(t *testing.T, values ...int16) audio.Segment {
	t.Helper()
	data := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	seg, err := audio.NewSegment(kHz, data)
	if err != nil {
		t.Fatalf("NewSegment: %v", err)
	}
	return seg
}

func renderMusic(t *testing.T, m mixer.Music) []int16 {
	t.Helper()
	b := mustBuffer(t, kHz, 0)
	if err := b.OverlayMusic(m); err != nil {
		t.Fatalf("OverlayMusic: %v", err)
	}
	out, err := b.ToSegment(0)
	if err != nil {
		t.Fatalf("ToSegment: %v", err)
	}
	return samples(out)
}

func TestOverlayMusic_LoopsClip(t *testing.T) {
	t.Parallel()

	for _, chunk := range []int64{0, 1, 2, 5} {
		got := renderMusic(t, mixer.Music{
			Label:   "bed",
			Clip:    rampClip(t, 1, 2, 3),
			StartMs: 0,
			EndMs:   7,
			ChunkMs: chunk,
		})
		want := []int16{1, 2, 3, 1, 2, 3, 1}
		if len(got) != len(want) {
			t.Fatalf("chunk %d: len = %d, want %d", chunk, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("chunk %d: sample %d = %d, want %d", chunk, i, got[i], want[i])
			}
		}
	}
}

func TestOverlayMusic_Envelope(t *testing.T) {
	t.Parallel()
	got := renderMusic(t, mixer.Music{
		Label:     "bed",
		Clip:      constSegment(t, kHz, 300, 1000),
		StartMs:   200,
		EndMs:     1200,
		FadeInMs:  100,
		FadeOutMs: 200,
		ChunkMs:   250,
	})
	if len(got) != 1200 {
		t.Fatalf("len = %d, want 1200", len(got))
	}

	checks := map[int]int16{
		0:    0,
		199:  0,
		200:  0,    // start of fade-in
		250:  500,  // halfway up
		300:  1000, // steady
		700:  1000,
		1100: 500, // halfway down
		1199: 5,   // last frame of fade-out
	}
	for i, want := range checks {
		if got[i] != want {
			t.Errorf("sample %d = %d, want %d", i, got[i], want)
		}
	}

	// The curve must be continuous across chunk and loop boundaries.
	for i := 201; i < len(got); i++ {
		d := int(got[i]) - int(got[i-1])
		if d > 10 || d < -5 {
			t.Fatalf("discontinuity at %d: %d -> %d", i, got[i-1], got[i])
		}
	}
}

func TestOverlayMusic_OverlappingRamps(t *testing.T) {
	t.Parallel()
	got := renderMusic(t, mixer.Music{
		Label:     "sting",
		Clip:      constSegment(t, kHz, 50, 1000),
		EndMs:     100,
		FadeInMs:  80,
		FadeOutMs: 80,
	})
	var peak int16
	for _, v := range got {
		peak = max(peak, v)
	}
	// The crossing point of both ramps is the loudest the bed can get.
	if peak > 625 || peak < 600 {
		t.Errorf("peak = %d, want about 625", peak)
	}
	if got[0] != 0 {
		t.Errorf("first sample = %d, want 0", got[0])
	}
}

func TestOverlayMusic_Gain(t *testing.T) {
	t.Parallel()
	got := renderMusic(t, mixer.Music{
		Clip:   constSegment(t, kHz, 10, 1000),
		EndMs:  10,
		GainDB: -6.0206,
	})
	for i, v := range got {
		if v < 499 || v > 501 {
			t.Fatalf("sample %d = %d, want about 500", i, v)
		}
	}
}

func TestOverlayMusic_SumsWithNarration(t *testing.T) {
	t.Parallel()
	b := mustBuffer(t, kHz, 0)
	if err := b.Overlay(constSegment(t, kHz, 10, 300), 0, "voice"); err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if err := b.OverlayMusic(mixer.Music{Clip: constSegment(t, kHz, 4, 200), EndMs: 10}); err != nil {
		t.Fatalf("OverlayMusic: %v", err)
	}
	out, _ := b.ToSegment(0)
	for i, v := range samples(out) {
		if v != 500 {
			t.Fatalf("sample %d = %d, want 500", i, v)
		}
	}
}

func TestOverlayMusic_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty clip", func(t *testing.T) {
		t.Parallel()
		b := mustBuffer(t, kHz, 0)
		err := b.OverlayMusic(mixer.Music{Clip: audio.SilenceFrames(kHz, 0), EndMs: 100})
		if !errors.Is(err, mixer.ErrEmptyClip) {
			t.Errorf("error = %v, want ErrEmptyClip", err)
		}
	})

	t.Run("over ceiling", func(t *testing.T) {
		t.Parallel()
		b := mustBuffer(t, kHz, 0, mixer.WithPolicy(mixer.Policy{CeilingBytes: 1000}))
		err := b.OverlayMusic(mixer.Music{Label: "theme", Clip: constSegment(t, kHz, 10, 1), StartMs: 100, EndMs: 2000})
		var tooLarge *mixer.TimelineTooLargeError
		if !errors.As(err, &tooLarge) {
			t.Fatalf("error = %v, want TimelineTooLargeError", err)
		}
		if tooLarge.Label != "theme" || tooLarge.StartMs != 100 || tooLarge.EndMs != 2000 {
			t.Errorf("detail = %+v", tooLarge)
		}
		if b.State().CapacityFrames != 0 {
			t.Error("buffer grew despite failure")
		}
	})

	t.Run("empty window is a no-op", func(t *testing.T) {
		t.Parallel()
		b := mustBuffer(t, kHz, 0)
		if err := b.OverlayMusic(mixer.Music{Clip: constSegment(t, kHz, 10, 1), StartMs: 50, EndMs: 50}); err != nil {
			t.Fatalf("error = %v", err)
		}
		if b.State().FinalFrame != 0 {
			t.Error("empty window wrote audio")
		}
	})
}
