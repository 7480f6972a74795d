package audio

import (
	"encoding/binary"
	"math"
)

// fullScale returns the largest positive sample value for a sample width in
// bytes. Width 1 is unsigned 8-bit PCM centred on 128; wider samples are
// signed little-endian.
func fullScale(width int) int32 {
	switch width {
	case 1:
		return 127
	case 2:
		return math.MaxInt16
	case 3:
		return 1<<23 - 1
	default:
		return math.MaxInt32
	}
}

// minScale returns the most negative sample value for a sample width.
func minScale(width int) int32 {
	switch width {
	case 1:
		return -128
	case 2:
		return math.MinInt16
	case 3:
		return -(1 << 23)
	default:
		return math.MinInt32
	}
}

// readSample decodes a single sample of the given width from b.
func readSample(b []byte, width int) int32 {
	switch width {
	case 1:
		return int32(b[0]) - 128
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return v
	default:
		return int32(binary.LittleEndian.Uint32(b))
	}
}

// writeSample encodes v into b, saturating at the width's range.
func writeSample(b []byte, width int, v int64) {
	hi, lo := int64(fullScale(width)), int64(minScale(width))
	if v > hi {
		v = hi
	} else if v < lo {
		v = lo
	}
	switch width {
	case 1:
		b[0] = byte(v + 128)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case 3:
		b[0] = byte(v)
		b[1] = byte(v >> 8)
		b[2] = byte(v >> 16)
	default:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	}
}

// rescale converts a sample value between widths by shifting.
func rescale(v int32, from, to int) int64 {
	if from == to {
		return int64(v)
	}
	shift := 8 * (to - from)
	if shift > 0 {
		return int64(v) << shift
	}
	return int64(v) >> -shift
}

// AddSaturating adds src into dst sample by sample. Both slices hold
// interleaved PCM of the same width; the shorter length wins. Sums saturate at
// the width's range instead of wrapping.
func AddSaturating(dst, src []byte, width int) {
	n := min(len(dst), len(src))
	n -= n % width
	for i := 0; i < n; i += width {
		sum := int64(readSample(dst[i:], width)) + int64(readSample(src[i:], width))
		writeSample(dst[i:], width, sum)
	}
}

// RMS16 returns the root-mean-square energy of interleaved PCM of the given
// width, expressed in 16-bit sample units (0-32767) so thresholds are
// comparable across widths. Returns 0 for buffers shorter than one sample.
func RMS16(pcm []byte, width int) float64 {
	n := len(pcm) / width
	if n == 0 {
		return 0
	}
	scale := float64(math.MaxInt16) / float64(fullScale(width))
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(readSample(pcm[i*width:], width)) * scale
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
