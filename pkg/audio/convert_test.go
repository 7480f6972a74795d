package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/castmix/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func mustSegment(t *testing.T, f audio.Format, samples []int16) audio.Segment {
	t.Helper()
	seg, err := audio.NewSegment(f, samplesToBytes(samples))
	if err != nil {
		t.Fatalf("NewSegment: %v", err)
	}
	return seg
}

var (
	mono48   = audio.Format{SampleRate: 48000, Channels: 1, SampleWidth: 2}
	stereo48 = audio.Format{SampleRate: 48000, Channels: 2, SampleWidth: 2}
	mono16k  = audio.Format{SampleRate: 16000, Channels: 1, SampleWidth: 2}
)

func assertSamples(t *testing.T, got, want []int16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConvert_MonoToStereo(t *testing.T) {
	t.Parallel()
	seg := mustSegment(t, mono48, []int16{100, 200, 300})
	got := bytesToSamples(seg.ConvertTo(stereo48).Data())
	assertSamples(t, got, []int16{100, 100, 200, 200, 300, 300})
}

func TestConvert_StereoToMono(t *testing.T) {
	t.Parallel()
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	seg := mustSegment(t, stereo48, []int16{100, 200, -100, -200})
	got := bytesToSamples(seg.ConvertTo(mono48).Data())
	assertSamples(t, got, []int16{150, -150})
}

func TestConvert_StereoToMonoClamping(t *testing.T) {
	t.Parallel()
	seg := mustSegment(t, stereo48, []int16{32767, 32767})
	got := bytesToSamples(seg.ConvertTo(mono48).Data())
	assertSamples(t, got, []int16{32767})
}

func TestConvert_SameFormatIsNoOp(t *testing.T) {
	t.Parallel()
	seg := mustSegment(t, mono48, []int16{100, 200, 300})
	if out := seg.ConvertTo(mono48); !out.Equal(seg) {
		t.Fatal("expected identical segment for matching format")
	}
}

func TestConvert_Upsample(t *testing.T) {
	t.Parallel()
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	seg := mustSegment(t, mono16k, []int16{1000, 2000})
	got := bytesToSamples(seg.ConvertTo(mono48).Data())
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	if last := got[len(got)-1]; last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestConvert_Downsample(t *testing.T) {
	t.Parallel()
	seg := mustSegment(t, mono48, []int16{100, 200, 300, 400, 500, 600})
	out := seg.ConvertTo(mono16k)
	if out.Frames() != 2 {
		t.Fatalf("expected 2 frames, got %d", out.Frames())
	}
}

func TestConvert_SampleWidth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		width int
		check func(t *testing.T, data []byte)
	}{
		{
			name:  "8-bit",
			width: 1,
			check: func(t *testing.T, data []byte) {
				// 32767 >> 8 = 127, stored unsigned as 255; -32768 >> 8 = -128 -> 0.
				if data[0] != 255 || data[1] != 0 {
					t.Errorf("got %v, want [255 0]", data)
				}
			},
		},
		{
			name:  "24-bit",
			width: 3,
			check: func(t *testing.T, data []byte) {
				v := int32(data[0]) | int32(data[1])<<8 | int32(data[2])<<16
				if v != 32767<<8 {
					t.Errorf("first sample: got %d, want %d", v, 32767<<8)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			seg := mustSegment(t, mono48, []int16{32767, -32768})
			target := mono48
			target.SampleWidth = tt.width
			out := seg.ConvertTo(target)
			if out.Frames() != 2 {
				t.Fatalf("frames = %d, want 2", out.Frames())
			}
			tt.check(t, out.Data())
		})
	}
}

func TestConverter_LogsOnceAndConverts(t *testing.T) {
	t.Parallel()
	conv := audio.Converter{Target: stereo48}
	seg := mustSegment(t, mono48, []int16{1, 2})
	for range 3 {
		if out := conv.Convert(seg); out.Format() != stereo48 || out.Frames() != 2 {
			t.Fatalf("Convert: got %s with %d frames", out.Format(), out.Frames())
		}
	}
}

func TestFromFloat(t *testing.T) {
	t.Parallel()
	seg := audio.FromFloat(mono48, []float64{1, -1, 0, 2})
	got := bytesToSamples(seg.Data())
	assertSamples(t, got, []int16{32767, -32767, 0, 32767})
}
