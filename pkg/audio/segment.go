// Package audio defines the PCM audio model shared by every castmix stage.
//
// A [Segment] is an immutable slice of interleaved little-endian PCM described
// by a [Format]. All editing operations (slicing, concatenation, gain, format
// conversion) return new segments and never modify their receiver, so a
// segment can be shared freely between stages.
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Format describes the frame rate, channel count and sample width of PCM data.
type Format struct {
	// SampleRate is the number of frames per second (e.g., 44100).
	SampleRate int

	// Channels is the number of interleaved channels per frame.
	Channels int

	// SampleWidth is the size of a single sample in bytes (1, 2, 3 or 4).
	SampleWidth int
}

// CD is 44.1 kHz stereo 16-bit PCM, the default output format.
var CD = Format{SampleRate: 44100, Channels: 2, SampleWidth: 2}

// Validate reports whether f describes usable PCM.
func (f Format) Validate() error {
	var errs []error
	if f.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", f.SampleRate))
	}
	if f.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channel count %d must be positive", f.Channels))
	}
	if f.SampleWidth < 1 || f.SampleWidth > 4 {
		errs = append(errs, fmt.Errorf("sample width %d must be 1-4 bytes", f.SampleWidth))
	}
	return errors.Join(errs...)
}

// FrameSize returns the number of bytes in one frame.
func (f Format) FrameSize() int { return f.Channels * f.SampleWidth }

// FramesForMs returns the number of frames needed to hold ms milliseconds,
// rounded up.
func (f Format) FramesForMs(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return (ms*int64(f.SampleRate) + 999) / 1000
}

// FrameAt returns the frame index nearest to t seconds.
func (f Format) FrameAt(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * float64(f.SampleRate)))
}

// String returns a human-readable description, e.g. "44100Hz stereo 16-bit".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s %d-bit", f.SampleRate, ch, f.SampleWidth*8)
}

// Segment is an immutable block of interleaved PCM.
type Segment struct {
	format Format
	data   []byte
}

// NewSegment wraps data in a Segment. Trailing bytes that do not form a whole
// frame are dropped. The caller must not modify data afterwards.
func NewSegment(f Format, data []byte) (Segment, error) {
	if err := f.Validate(); err != nil {
		return Segment{}, fmt.Errorf("audio: %w", err)
	}
	fs := f.FrameSize()
	return Segment{format: f, data: data[:len(data)-len(data)%fs]}, nil
}

// Silence returns ms milliseconds of digital silence in format f.
func Silence(f Format, ms int64) Segment {
	frames := f.FramesForMs(ms)
	return SilenceFrames(f, int(frames))
}

// SilenceFrames returns n frames of digital silence in format f.
func SilenceFrames(f Format, n int) Segment {
	if n <= 0 {
		return Segment{format: f}
	}
	data := make([]byte, n*f.FrameSize())
	if f.SampleWidth == 1 {
		for i := range data {
			data[i] = 128
		}
	}
	return Segment{format: f, data: data}
}

// Format returns the segment's PCM format.
func (s Segment) Format() Format { return s.format }

// Data returns the raw PCM bytes. The returned slice must not be modified.
func (s Segment) Data() []byte { return s.data }

// Len returns the size of the PCM data in bytes.
func (s Segment) Len() int { return len(s.data) }

// Frames returns the number of frames in the segment.
func (s Segment) Frames() int {
	fs := s.format.FrameSize()
	if fs == 0 {
		return 0
	}
	return len(s.data) / fs
}

// IsEmpty reports whether the segment holds no frames.
func (s Segment) IsEmpty() bool { return s.Frames() == 0 }

// Duration returns the playback length of the segment.
func (s Segment) Duration() time.Duration {
	if s.format.SampleRate == 0 {
		return 0
	}
	return time.Duration(int64(s.Frames()) * int64(time.Second) / int64(s.format.SampleRate))
}

// DurationMs returns the playback length in whole milliseconds, rounded up so
// that a placement of this length always covers every frame.
func (s Segment) DurationMs() int64 {
	if s.format.SampleRate == 0 {
		return 0
	}
	return (int64(s.Frames())*1000 + int64(s.format.SampleRate) - 1) / int64(s.format.SampleRate)
}

// Seconds returns the playback length in seconds.
func (s Segment) Seconds() float64 {
	if s.format.SampleRate == 0 {
		return 0
	}
	return float64(s.Frames()) / float64(s.format.SampleRate)
}

// SliceFrames returns frames [start, end). Bounds are clamped to the segment.
func (s Segment) SliceFrames(start, end int) Segment {
	n := s.Frames()
	start = max(0, min(start, n))
	end = max(start, min(end, n))
	fs := s.format.FrameSize()
	return Segment{format: s.format, data: s.data[start*fs : end*fs]}
}

// SliceSeconds returns the audio between start and end seconds.
func (s Segment) SliceSeconds(start, end float64) Segment {
	return s.SliceFrames(s.format.FrameAt(start), s.format.FrameAt(end))
}

// SliceMs returns the audio between startMs and endMs.
func (s Segment) SliceMs(startMs, endMs int64) Segment {
	return s.SliceSeconds(float64(startMs)/1000, float64(endMs)/1000)
}

// Append returns s followed by o. o is converted to s's format first.
func (s Segment) Append(o Segment) Segment {
	if o.IsEmpty() {
		return s
	}
	o = o.ConvertTo(s.format)
	data := make([]byte, 0, len(s.data)+len(o.data))
	data = append(data, s.data...)
	data = append(data, o.data...)
	return Segment{format: s.format, data: data}
}

// Concat joins segments in order, converting each to format f.
func Concat(f Format, segs ...Segment) Segment {
	total := 0
	for _, seg := range segs {
		total += seg.Frames()
	}
	data := make([]byte, 0, total*f.FrameSize())
	for _, seg := range segs {
		data = append(data, seg.ConvertTo(f).data...)
	}
	return Segment{format: f, data: data}
}

// Insert returns a copy of s with o spliced in at frame position at.
func (s Segment) Insert(at int, o Segment) Segment {
	at = max(0, min(at, s.Frames()))
	return Concat(s.format, s.SliceFrames(0, at), o, s.SliceFrames(at, s.Frames()))
}

// ApplyGainDB returns a copy of s scaled by db decibels. Results saturate.
func (s Segment) ApplyGainDB(db float64) Segment {
	if db == 0 || s.IsEmpty() {
		return s
	}
	return s.scale(math.Pow(10, db/20))
}

// Peak returns the largest absolute sample value in the segment.
func (s Segment) Peak() int64 {
	w := s.format.SampleWidth
	var peak int64
	for i := 0; i+w <= len(s.data); i += w {
		v := int64(readSample(s.data[i:], w))
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	return peak
}

// PeakDBFS returns the segment peak relative to full scale. Silence yields
// negative infinity.
func (s Segment) PeakDBFS() float64 {
	p := s.Peak()
	if p == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(float64(p)/float64(fullScale(s.format.SampleWidth)))
}

// NormalizePeak returns a copy of s scaled so that its peak sits at
// targetDBFS. Silent segments are returned unchanged.
func (s Segment) NormalizePeak(targetDBFS float64) Segment {
	current := s.PeakDBFS()
	if math.IsInf(current, -1) {
		return s
	}
	return s.ApplyGainDB(targetDBFS - current)
}

// RMS returns the RMS energy of frames [start, end) in 16-bit sample units.
func (s Segment) RMS(start, end int) float64 {
	return RMS16(s.SliceFrames(start, end).data, s.format.SampleWidth)
}

// Equal reports whether two segments share format and PCM bytes.
func (s Segment) Equal(o Segment) bool {
	return s.format == o.format && string(s.data) == string(o.data)
}

// ApplyEnvelope returns a copy of s with every sample of frame i multiplied by
// gain(i). Results saturate.
func (s Segment) ApplyEnvelope(gain func(frame int) float64) Segment {
	w := s.format.SampleWidth
	fs := s.format.FrameSize()
	out := make([]byte, len(s.data))
	for fr := range s.Frames() {
		g := gain(fr)
		for off := fr * fs; off < (fr+1)*fs; off += w {
			v := float64(readSample(s.data[off:], w)) * g
			writeSample(out[off:], w, int64(math.Round(v)))
		}
	}
	return Segment{format: s.format, data: out}
}

func (s Segment) scale(factor float64) Segment {
	w := s.format.SampleWidth
	out := make([]byte, len(s.data))
	for i := 0; i+w <= len(s.data); i += w {
		v := float64(readSample(s.data[i:], w)) * factor
		writeSample(out[i:], w, int64(math.Round(v)))
	}
	return Segment{format: s.format, data: out}
}
