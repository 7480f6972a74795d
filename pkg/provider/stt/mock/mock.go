// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/provider/stt"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Words is returned by Transcribe when Err is nil.
	Words []timeline.Word

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Calls counts invocations of Transcribe.
	Calls int
}

// Transcribe records the call and returns a copy of Words, or Err.
func (m *Transcriber) Transcribe(_ context.Context, _ audio.Segment) ([]timeline.Word, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]timeline.Word(nil), m.Words...), nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
