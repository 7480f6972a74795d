package resilience

import (
	"context"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/provider/stt"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// STTFallback implements [stt.Transcriber] with failover across
// transcription servers.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates a chain with primary as the preferred server.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another server.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Status reports the breaker state of every backend.
func (f *STTFallback) Status() []EntryStatus { return f.group.Status() }

// Transcribe runs seg through the first healthy server.
func (f *STTFallback) Transcribe(ctx context.Context, seg audio.Segment) ([]timeline.Word, error) {
	return ExecuteNamed(ctx, f.group, "", func(_ string, t stt.Transcriber) ([]timeline.Word, error) {
		return t.Transcribe(ctx, seg)
	})
}
