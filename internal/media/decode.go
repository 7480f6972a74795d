package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"

	"github.com/MrWong99/castmix/pkg/audio"
)

// ErrUnsupportedEncoding is returned for assets that are neither WAV nor MP3.
var ErrUnsupportedEncoding = errors.New("media: unsupported encoding")

// streamChunk is the number of frames pulled from a decoder per call.
const streamChunk = 8192

// Decode decodes an encoded asset. encoding is a file extension or a bare
// name ("wav", ".mp3"). Integer PCM WAV is decoded bit-exact; float WAV and
// MP3 go through beep and are quantized to 16-bit.
func Decode(encoding string, data []byte) (audio.Segment, error) {
	switch normalizeEncoding(encoding) {
	case "wav":
		seg, err := audio.DecodeWAV(data)
		if err == nil {
			return seg, nil
		}
		if !errors.Is(err, audio.ErrUnsupportedWAV) {
			return audio.Segment{}, fmt.Errorf("media: decode wav: %w", err)
		}
		s, f, err := wav.Decode(bytes.NewReader(data))
		if err != nil {
			return audio.Segment{}, fmt.Errorf("media: decode wav: %w", err)
		}
		defer s.Close()
		return drain(s, f)
	case "mp3":
		s, f, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return audio.Segment{}, fmt.Errorf("media: decode mp3: %w", err)
		}
		defer s.Close()
		return drain(s, f)
	default:
		return audio.Segment{}, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
}

// EncodingOf returns the encoding implied by a file name's extension.
func EncodingOf(name string) string {
	return normalizeEncoding(filepath.Ext(name))
}

func normalizeEncoding(enc string) string {
	return strings.ToLower(strings.TrimPrefix(enc, "."))
}

// drain reads a beep stream to the end into a 16-bit segment of the
// stream's rate and channel count.
func drain(s beep.Streamer, bf beep.Format) (audio.Segment, error) {
	channels := min(max(bf.NumChannels, 1), 2)
	f := audio.Format{SampleRate: int(bf.SampleRate), Channels: channels, SampleWidth: 2}
	if err := f.Validate(); err != nil {
		return audio.Segment{}, fmt.Errorf("media: decoded stream: %w", err)
	}

	buf := make([][2]float64, streamChunk)
	var interleaved []float64
	for {
		n, ok := s.Stream(buf)
		for _, fr := range buf[:n] {
			interleaved = append(interleaved, fr[0])
			if channels == 2 {
				interleaved = append(interleaved, fr[1])
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return audio.Segment{}, fmt.Errorf("media: decode stream: %w", err)
	}
	return audio.FromFloat(f, interleaved), nil
}
