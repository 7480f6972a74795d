package audio_test

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/castmix/pkg/audio"
)

func TestFormat_FramesForMs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		f    audio.Format
		ms   int64
		want int64
	}{
		{"cd 20s", audio.CD, 20_000, 882_000},
		{"cd 1ms rounds up", audio.CD, 1, 45},
		{"zero", audio.CD, 0, 0},
		{"negative", audio.CD, -5, 0},
		{"16k 10ms", mono16k, 10, 160},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.f.FramesForMs(tt.ms); got != tt.want {
				t.Errorf("FramesForMs(%d) = %d, want %d", tt.ms, got, tt.want)
			}
		})
	}
}

func TestFormat_Validate(t *testing.T) {
	t.Parallel()
	if err := audio.CD.Validate(); err != nil {
		t.Fatalf("CD.Validate: %v", err)
	}
	err := audio.Format{SampleRate: 0, Channels: 0, SampleWidth: 5}.Validate()
	if err == nil {
		t.Fatal("expected error for zero format")
	}
	if _, err := audio.NewSegment(audio.Format{}, nil); err == nil {
		t.Fatal("NewSegment accepted an invalid format")
	}
}

func TestNewSegment_DropsPartialFrame(t *testing.T) {
	t.Parallel()
	seg, err := audio.NewSegment(stereo48, make([]byte, 10))
	if err != nil {
		t.Fatalf("NewSegment: %v", err)
	}
	if seg.Frames() != 2 || seg.Len() != 8 {
		t.Errorf("got %d frames / %d bytes, want 2 / 8", seg.Frames(), seg.Len())
	}
}

func TestSilence(t *testing.T) {
	t.Parallel()
	seg := audio.Silence(audio.CD, 1000)
	if seg.Frames() != 44100 {
		t.Errorf("frames = %d, want 44100", seg.Frames())
	}
	if seg.DurationMs() != 1000 {
		t.Errorf("DurationMs = %d, want 1000", seg.DurationMs())
	}
	if seg.Peak() != 0 {
		t.Errorf("peak = %d, want 0", seg.Peak())
	}

	u8 := audio.Format{SampleRate: 8000, Channels: 1, SampleWidth: 1}
	for i, b := range audio.Silence(u8, 10).Data() {
		if b != 128 {
			t.Fatalf("8-bit silence byte %d = %d, want 128", i, b)
		}
	}
}

func TestSegment_SliceAndInsert(t *testing.T) {
	t.Parallel()
	seg := mustSegment(t, mono48, []int16{1, 2, 3, 4, 5})

	assertSamples(t, bytesToSamples(seg.SliceFrames(1, 3).Data()), []int16{2, 3})
	assertSamples(t, bytesToSamples(seg.SliceFrames(-4, 99).Data()), []int16{1, 2, 3, 4, 5})
	if !seg.SliceFrames(4, 2).IsEmpty() {
		t.Error("inverted slice should be empty")
	}

	ins := mustSegment(t, mono48, []int16{9, 9})
	assertSamples(t, bytesToSamples(seg.Insert(2, ins).Data()), []int16{1, 2, 9, 9, 3, 4, 5})
	assertSamples(t, bytesToSamples(seg.Append(ins).Data()), []int16{1, 2, 3, 4, 5, 9, 9})
	// Receiver is unchanged.
	assertSamples(t, bytesToSamples(seg.Data()), []int16{1, 2, 3, 4, 5})
}

func TestConcat_ConvertsFormats(t *testing.T) {
	t.Parallel()
	a := mustSegment(t, mono48, []int16{10})
	b := mustSegment(t, stereo48, []int16{20, 30})
	out := audio.Concat(stereo48, a, b)
	assertSamples(t, bytesToSamples(out.Data()), []int16{10, 10, 20, 30})
}

func TestSegment_ApplyGainDB(t *testing.T) {
	t.Parallel()
	seg := mustSegment(t, mono48, []int16{1000, -1000, 30000})
	got := bytesToSamples(seg.ApplyGainDB(20 * math.Log10(2)).Data())
	assertSamples(t, got, []int16{2000, -2000, 32767})

	if out := seg.ApplyGainDB(0); !out.Equal(seg) {
		t.Error("0 dB gain should return the segment unchanged")
	}
}

func TestSegment_NormalizePeak(t *testing.T) {
	t.Parallel()
	seg := mustSegment(t, mono48, []int16{1000, -4000, 2000})
	out := seg.NormalizePeak(-6)
	if got := out.PeakDBFS(); math.Abs(got-(-6)) > 0.01 {
		t.Errorf("PeakDBFS = %.3f, want -6", got)
	}

	silent := audio.Silence(mono48, 10)
	if out := silent.NormalizePeak(-1); !out.Equal(silent) {
		t.Error("silence should not be normalized")
	}
}

func TestSegment_RMS(t *testing.T) {
	t.Parallel()
	seg := mustSegment(t, mono48, []int16{300, -300, 300, -300})
	if got := seg.RMS(0, 4); math.Abs(got-300) > 1e-9 {
		t.Errorf("RMS = %f, want 300", got)
	}
	if got := seg.RMS(2, 2); got != 0 {
		t.Errorf("RMS of empty range = %f, want 0", got)
	}
}

func TestWAV_EncodeDecode(t *testing.T) {
	t.Parallel()
	seg := mustSegment(t, stereo48, []int16{1, -1, 500, -500})
	got, err := audio.DecodeWAV(audio.EncodeWAV(seg))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !got.Equal(seg) {
		t.Errorf("decoded segment differs: format %s, %d bytes", got.Format(), got.Len())
	}
}

func TestDecodeWAV_SkipsExtraChunks(t *testing.T) {
	t.Parallel()
	seg := mustSegment(t, mono16k, []int16{7, 8, 9})
	wav := audio.EncodeWAV(seg)

	// Insert an odd-sized LIST chunk between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	withList := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)

	got, err := audio.DecodeWAV(withList)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	assertSamples(t, bytesToSamples(got.Data()), []int16{7, 8, 9})
}

func TestDecodeWAV_Errors(t *testing.T) {
	t.Parallel()

	float := audio.EncodeWAV(mustSegment(t, mono16k, []int16{1}))
	float[20] = 3 // WAVE_FORMAT_IEEE_FLOAT

	tests := []struct {
		name string
		data []byte
		is   error
	}{
		{"short", []byte("RIFF"), nil},
		{"not riff", append([]byte("RIFX"), make([]byte, 40)...), nil},
		{"float", float, audio.ErrUnsupportedWAV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := audio.DecodeWAV(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want %v", err, tt.is)
			}
		})
	}
}
