package mixer

import (
	"errors"

	"github.com/MrWong99/castmix/pkg/audio"
)

// DefaultChunkMs bounds the size of each looped music window.
const DefaultChunkMs = 30_000

// ErrEmptyClip is returned by [Buffer.OverlayMusic] for a clip with no frames.
var ErrEmptyClip = errors.New("mixer: music clip is empty")

// Music describes one background-music bed on the output timeline.
type Music struct {
	// Label identifies the rule in errors and logs.
	Label string

	// Clip is looped for the whole window.
	Clip audio.Segment

	// StartMs and EndMs bound the bed on the output timeline.
	StartMs int64
	EndMs   int64

	// GainDB is applied to every sample before the envelope.
	GainDB float64

	// FadeInMs and FadeOutMs are the linear ramp lengths at each end.
	FadeInMs  int64
	FadeOutMs int64

	// ChunkMs caps the size of each window added to the buffer. Zero means
	// [DefaultChunkMs].
	ChunkMs int64
}

// envelope is the fade curve of a music bed, evaluated at a frame offset
// relative to the bed start.
type envelope struct {
	length  int64
	fadeIn  int64
	fadeOut int64
}

// at returns the linear gain at frame pos: a ramp from 0 to 1 over the fade-in,
// unity in the steady region and a ramp from 1 to 0 over the fade-out. When
// the ramps overlap the lower gain wins, which keeps the curve continuous.
func (e envelope) at(pos int64) float64 {
	g := 1.0
	if e.fadeIn > 0 && pos < e.fadeIn {
		g = float64(pos) / float64(e.fadeIn)
	}
	if e.fadeOut > 0 && pos >= e.length-e.fadeOut {
		g = min(g, float64(e.length-pos)/float64(e.fadeOut))
	}
	return g
}

// boundaries returns the ramp edges strictly inside the bed.
func (e envelope) boundaries() []int64 {
	var out []int64
	for _, b := range []int64{e.fadeIn, e.length - e.fadeOut} {
		if b > 0 && b < e.length {
			out = append(out, b)
		}
	}
	return out
}

// OverlayMusic loops m.Clip across [m.StartMs, m.EndMs) and adds it to the
// buffer with gain and fades applied. The clip is processed in windows of at
// most m.ChunkMs so a long bed never materializes as one looped clip. Windows
// are split at ramp edges and loop boundaries; the envelope is evaluated at
// absolute positions inside the bed, so it stays continuous across windows.
func (b *Buffer) OverlayMusic(m Music) error {
	if b.consumed {
		return ErrConsumed
	}
	clip := b.conv.Convert(m.Clip)
	if clip.IsEmpty() {
		return ErrEmptyClip
	}

	start := b.FrameAtMs(m.StartMs)
	end := b.FrameAtMs(m.EndMs)
	if end <= start {
		return nil
	}
	fs := int64(b.format.FrameSize())
	if err := b.ensure(end*fs, m.Label, start, end); err != nil {
		return err
	}

	chunkMs := m.ChunkMs
	if chunkMs <= 0 {
		chunkMs = DefaultChunkMs
	}
	chunkFrames := max(1, b.format.FramesForMs(chunkMs))
	clipFrames := int64(clip.Frames())

	env := envelope{
		length:  end - start,
		fadeIn:  min(b.FrameAtMs(m.FadeInMs), end-start),
		fadeOut: min(b.FrameAtMs(m.FadeOutMs), end-start),
	}
	edges := env.boundaries()

	for pos := int64(0); pos < env.length; {
		next := min(env.length, pos+chunkFrames)
		// Stay inside one clip iteration.
		loopOff := pos % clipFrames
		next = min(next, pos+clipFrames-loopOff)
		// Stay inside one envelope region.
		for _, e := range edges {
			if e > pos {
				next = min(next, e)
			}
		}

		window := clip.SliceFrames(int(loopOff), int(loopOff+next-pos))
		if m.GainDB != 0 {
			window = window.ApplyGainDB(m.GainDB)
		}
		if env.at(pos) != 1 || env.at(next-1) != 1 {
			from := pos
			window = window.ApplyEnvelope(func(frame int) float64 {
				return env.at(from + int64(frame))
			})
		}
		if err := b.overlayFrames(window, start+pos, m.Label); err != nil {
			return err
		}
		pos = next
	}
	return nil
}
