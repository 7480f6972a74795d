package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrUnsupportedWAV is returned by [DecodeWAV] for RIFF files that do not hold
// integer PCM (e.g., IEEE float or compressed encodings).
var ErrUnsupportedWAV = errors.New("audio: unsupported WAV encoding")

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// EncodeWAV wraps the segment's PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(s Segment) []byte {
	f := s.format
	dataSize := len(s.data)
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.SampleRate*f.FrameSize()))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(f.FrameSize()))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(f.SampleWidth*8))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], s.data)
	return buf
}

// WriteWAV writes s to w as a WAV file.
func WriteWAV(w io.Writer, s Segment) error {
	_, err := w.Write(EncodeWAV(s))
	return err
}

// DecodeWAV parses a RIFF/WAVE container holding integer PCM. Chunks are
// walked rather than assuming a fixed 44-byte header, because fmt chunk sizes
// vary between encoders and LIST/fact chunks may precede the data.
func DecodeWAV(wav []byte) (Segment, error) {
	if len(wav) < 12 {
		return Segment{}, errors.New("audio: WAV data too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return Segment{}, errors.New("audio: WAV data missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return Segment{}, errors.New("audio: WAV data missing WAVE identifier")
	}

	var (
		f        Format
		foundFmt bool
	)
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(wav) {
				return Segment{}, errors.New("audio: WAV fmt chunk truncated")
			}
			code := binary.LittleEndian.Uint16(wav[body : body+2])
			if code != wavFormatPCM && code != wavFormatExtensible {
				return Segment{}, fmt.Errorf("%w: format code %#x", ErrUnsupportedWAV, code)
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			f.SampleWidth = int(binary.LittleEndian.Uint16(wav[body+14:body+16])) / 8
			foundFmt = true
		case "data":
			if !foundFmt {
				return Segment{}, errors.New("audio: WAV data chunk precedes fmt chunk")
			}
			end := min(body+chunkSize, len(wav))
			return NewSegment(f, wav[body:end])
		}

		// Chunks are word-aligned: pad by one byte when the size is odd.
		offset = body + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Segment{}, errors.New("audio: WAV data missing data chunk")
}
