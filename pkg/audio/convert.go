package audio

import (
	"log/slog"
	"math"
	"sync"
)

// Converter converts segments to a target format. It logs a warning on the
// first format mismatch so noisy sources are visible without flooding logs.
// Create one per consumer; it is not designed for shared use across goroutines.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert returns seg in the converter's target format. Matching segments are
// returned unchanged.
func (c *Converter) Convert(seg Segment) Segment {
	if seg.format == c.Target || seg.IsEmpty() {
		return seg.ConvertTo(c.Target)
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", seg.format.String(),
			"to", c.Target.String(),
		)
	})
	return seg.ConvertTo(c.Target)
}

// ConvertTo returns s converted to format f. Conversion order: sample width,
// channel down-mix, resample, channel up-mix, so that resampling always runs
// on the smaller channel count.
func (s Segment) ConvertTo(f Format) Segment {
	if s.format == f {
		return s
	}
	if s.IsEmpty() {
		return Segment{format: f}
	}

	samples := s.decode(f.SampleWidth)
	channels := s.format.Channels

	if f.Channels < channels {
		samples = remixChannels(samples, channels, f.Channels)
		channels = f.Channels
	}
	if s.format.SampleRate != f.SampleRate {
		samples = resample(samples, channels, s.format.SampleRate, f.SampleRate)
	}
	if f.Channels > channels {
		samples = remixChannels(samples, channels, f.Channels)
	}

	out := make([]byte, len(samples)*f.SampleWidth)
	for i, v := range samples {
		writeSample(out[i*f.SampleWidth:], f.SampleWidth, int64(v))
	}
	return Segment{format: f, data: out}
}

// decode returns every sample of s rescaled to width bytes.
func (s Segment) decode(width int) []int32 {
	w := s.format.SampleWidth
	n := len(s.data) / w
	out := make([]int32, n)
	lo, hi := int64(minScale(width)), int64(fullScale(width))
	for i := range n {
		v := rescale(readSample(s.data[i*w:], w), w, width)
		out[i] = int32(max(lo, min(hi, v)))
	}
	return out
}

// remixChannels converts interleaved samples between channel counts. Mono
// up-mixes duplicate the single channel; down-mixes to mono average all
// channels; other layouts copy channel i from source channel i mod src.
func remixChannels(samples []int32, src, dst int) []int32 {
	frames := len(samples) / src
	out := make([]int32, frames*dst)
	for fr := range frames {
		in := samples[fr*src : fr*src+src]
		switch {
		case dst == 1:
			var sum int64
			for _, v := range in {
				sum += int64(v)
			}
			out[fr] = int32(sum / int64(src))
		default:
			for ch := range dst {
				out[fr*dst+ch] = in[ch%src]
			}
		}
	}
	return out
}

// resample converts interleaved samples from srcRate to dstRate using linear
// interpolation per channel.
func resample(samples []int32, channels, srcRate, dstRate int) []int32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return samples
	}
	srcFrames := len(samples) / channels
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]int32, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			a := float64(samples[idx*channels+ch])
			b := float64(samples[next*channels+ch])
			out[i*channels+ch] = int32(math.Round(a*(1-frac) + b*frac))
		}
	}
	return out
}

// FromFloat builds a segment in format f from interleaved float samples in the
// range [-1, 1]. Values outside the range saturate.
func FromFloat(f Format, interleaved []float64) Segment {
	w := f.SampleWidth
	out := make([]byte, len(interleaved)*w)
	scale := float64(fullScale(w))
	for i, v := range interleaved {
		writeSample(out[i*w:], w, int64(math.Round(v*scale)))
	}
	n := len(out) - len(out)%f.FrameSize()
	return Segment{format: f, data: out[:n]}
}
