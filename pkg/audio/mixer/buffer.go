// Package mixer implements the bounded-memory PCM accumulator used to render
// final episode mixes.
//
// A [Buffer] holds one growable byte slice of interleaved PCM in a fixed
// format. Segments are added into it sample by sample with [Buffer.Overlay],
// so narration and background music sum rather than overwrite each other.
// Growth is bounded by a byte ceiling from an injectable [Policy]; requests
// past the ceiling fail with [*TimelineTooLargeError] before any allocation.
// The buffer is consumed exactly once by [Buffer.ToSegment].
//
// A Buffer is owned by a single caller and is not safe for concurrent use.
package mixer

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/MrWong99/castmix/pkg/audio"
)

const (
	// DefaultCeilingBytes is the default maximum buffer size (2 GiB).
	DefaultCeilingBytes int64 = 2 << 30

	// DefaultGrowthFactor is the default capacity multiplier applied on growth.
	DefaultGrowthFactor = 2.0
)

// ErrConsumed is returned by operations on a buffer that has already been
// materialized with [Buffer.ToSegment].
var ErrConsumed = errors.New("mixer: buffer already materialized")

// Policy bounds how a [Buffer] grows. The zero value is replaced with
// defaults by [Policy.withDefaults].
type Policy struct {
	// CeilingBytes is the hard upper bound on the buffer size. Default 2 GiB.
	CeilingBytes int64

	// InitialFrames is the minimum capacity allocated by [New], regardless of
	// the capacity hint.
	InitialFrames int64

	// GrowthFactor multiplies the current capacity when the buffer must grow.
	// The new capacity is always at least what the overlay needs. Default 2.
	GrowthFactor float64
}

// DefaultPolicy returns the production buffer policy.
func DefaultPolicy() Policy {
	return Policy{CeilingBytes: DefaultCeilingBytes, GrowthFactor: DefaultGrowthFactor}
}

func (p Policy) withDefaults() Policy {
	if p.CeilingBytes <= 0 {
		p.CeilingBytes = DefaultCeilingBytes
	}
	if p.GrowthFactor < 1 {
		p.GrowthFactor = DefaultGrowthFactor
	}
	return p
}

// EstimateBytes returns the number of bytes needed to hold durationMs of PCM
// in format f.
func EstimateBytes(durationMs int64, f audio.Format) int64 {
	return f.FramesForMs(durationMs) * int64(f.FrameSize())
}

// CheckBudget returns a [*TimelineTooLargeError] when durationMs of PCM in
// format f would not fit under the policy ceiling. It allocates nothing.
func (p Policy) CheckBudget(label string, durationMs int64, f audio.Format) error {
	p = p.withDefaults()
	need := EstimateBytes(durationMs, f)
	if need > p.CeilingBytes {
		return &TimelineTooLargeError{
			Label:        label,
			StartMs:      0,
			EndMs:        durationMs,
			NeededBytes:  need,
			CeilingBytes: p.CeilingBytes,
		}
	}
	return nil
}

// TimelineTooLargeError reports a mix that would exceed the buffer ceiling.
type TimelineTooLargeError struct {
	// Label names the placement or rule that triggered the failure.
	Label string

	// StartMs and EndMs give the offending span on the output timeline.
	StartMs int64
	EndMs   int64

	NeededBytes  int64
	CeilingBytes int64
}

func (e *TimelineTooLargeError) Error() string {
	return fmt.Sprintf("mixer: timeline too large: %q spanning %d-%d ms needs %s, ceiling is %s",
		e.Label, e.StartMs, e.EndMs,
		humanize.IBytes(uint64(e.NeededBytes)), humanize.IBytes(uint64(e.CeilingBytes)))
}

// State is a snapshot of a buffer's format and extent.
type State struct {
	FrameRate      int
	Channels       int
	SampleWidth    int
	CapacityFrames int64
	FinalFrame     int64
}

// Option configures a [Buffer] during construction.
type Option func(*Buffer)

// WithPolicy replaces the buffer growth policy.
func WithPolicy(p Policy) Option {
	return func(b *Buffer) {
		b.policy = p.withDefaults()
	}
}

// Buffer accumulates PCM overlays into a single growable byte slice.
type Buffer struct {
	format audio.Format
	policy Policy
	conv   audio.Converter

	buf        []byte
	finalFrame int64
	consumed   bool
}

// New creates a buffer for format f with room for capacityHintMs of audio.
// A hint larger than the ceiling fails with [*TimelineTooLargeError].
func New(f audio.Format, capacityHintMs int64, opts ...Option) (*Buffer, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("mixer: %w", err)
	}
	b := &Buffer{
		format: f,
		policy: DefaultPolicy(),
		conv:   audio.Converter{Target: f},
	}
	for _, o := range opts {
		o(b)
	}
	if err := b.policy.CheckBudget("capacity hint", capacityHintMs, f); err != nil {
		return nil, err
	}
	frames := max(f.FramesForMs(capacityHintMs), b.policy.InitialFrames)
	fs := int64(f.FrameSize())
	frames = min(frames, b.policy.CeilingBytes/fs)
	b.buf = silenceBytes(f, int(frames*fs))
	return b, nil
}

// Format returns the buffer's PCM format.
func (b *Buffer) Format() audio.Format { return b.format }

// Policy returns the active growth policy.
func (b *Buffer) Policy() Policy { return b.policy }

// State returns a snapshot of the buffer's extent.
func (b *Buffer) State() State {
	return State{
		FrameRate:      b.format.SampleRate,
		Channels:       b.format.Channels,
		SampleWidth:    b.format.SampleWidth,
		CapacityFrames: int64(len(b.buf) / b.format.FrameSize()),
		FinalFrame:     b.finalFrame,
	}
}

// FrameAtMs returns the frame index for a position in milliseconds.
func (b *Buffer) FrameAtMs(ms int64) int64 {
	return ms * int64(b.format.SampleRate) / 1000
}

// Overlay converts seg to the buffer format and adds it at positionMs.
// Frames that would land before zero are dropped. Growth past the ceiling
// fails with a [*TimelineTooLargeError] naming label and the millisecond span.
func (b *Buffer) Overlay(seg audio.Segment, positionMs int64, label string) error {
	if b.consumed {
		return ErrConsumed
	}
	seg = b.conv.Convert(seg)
	return b.overlayFrames(seg, b.FrameAtMs(positionMs), label)
}

// overlayFrames adds seg, already in the buffer format, at startFrame.
func (b *Buffer) overlayFrames(seg audio.Segment, startFrame int64, label string) error {
	if b.consumed {
		return ErrConsumed
	}
	if startFrame < 0 {
		seg = seg.SliceFrames(int(-startFrame), seg.Frames())
		startFrame = 0
	}
	if seg.IsEmpty() {
		return nil
	}

	fs := int64(b.format.FrameSize())
	endFrame := startFrame + int64(seg.Frames())
	if err := b.ensure(endFrame*fs, label, startFrame, endFrame); err != nil {
		return err
	}

	audio.AddSaturating(b.buf[startFrame*fs:endFrame*fs], seg.Data(), b.format.SampleWidth)
	b.finalFrame = max(b.finalFrame, endFrame)
	return nil
}

// ensure grows the buffer to hold need bytes, failing before allocation when
// need exceeds the ceiling.
func (b *Buffer) ensure(need int64, label string, startFrame, endFrame int64) error {
	if need <= int64(len(b.buf)) {
		return nil
	}
	if need > b.policy.CeilingBytes {
		rate := int64(b.format.SampleRate)
		return &TimelineTooLargeError{
			Label:        label,
			StartMs:      startFrame * 1000 / rate,
			EndMs:        (endFrame*1000 + rate - 1) / rate,
			NeededBytes:  need,
			CeilingBytes: b.policy.CeilingBytes,
		}
	}

	fs := int64(b.format.FrameSize())
	grown := int64(float64(len(b.buf)) * b.policy.GrowthFactor)
	grown -= grown % fs
	newCap := min(max(need, grown), b.policy.CeilingBytes-b.policy.CeilingBytes%fs)
	next := silenceBytes(b.format, int(newCap))
	copy(next, b.buf)
	b.buf = next
	return nil
}

// ToSegment materializes max(final frame, minDurationMs) of audio and
// consumes the buffer. It never returns more than was written plus the
// requested floor.
func (b *Buffer) ToSegment(minDurationMs int64) (audio.Segment, error) {
	if b.consumed {
		return audio.Segment{}, ErrConsumed
	}
	frames := max(b.finalFrame, b.format.FramesForMs(minDurationMs))
	fs := int64(b.format.FrameSize())
	if err := b.ensure(frames*fs, "minimum duration", 0, frames); err != nil {
		return audio.Segment{}, err
	}

	data := b.buf[: frames*fs : frames*fs]
	b.buf = nil
	b.consumed = true
	return audio.NewSegment(b.format, data)
}

// silenceBytes returns n bytes of digital silence for format f.
func silenceBytes(f audio.Format, n int) []byte {
	buf := make([]byte, n)
	if f.SampleWidth == 1 {
		for i := range buf {
			buf[i] = 128
		}
	}
	return buf
}
