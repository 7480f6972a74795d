// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// A transcriber turns a complete recording into a word-level timeline. It is
// used when an episode arrives without a transcript; the words it returns
// drive every transcript-based edit that follows.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// Transcriber is the abstraction over any batch transcription backend.
type Transcriber interface {
	// Transcribe returns the words spoken in seg with times in seconds
	// relative to the start of seg, ordered by start time.
	Transcribe(ctx context.Context, seg audio.Segment) ([]timeline.Word, error)
}
