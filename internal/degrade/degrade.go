// Package degrade carries recoverable problems out of a pipeline run.
//
// Stages report content-shaping failures (a synthesis error, a missing
// optional asset) through a [*Log] instead of returning an error. Each warning
// is logged at Warn level when recorded and kept so the caller can report it
// with the result.
package degrade

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Warning is one recovered problem.
type Warning struct {
	// Stage is the pipeline stage that recovered (e.g. "intern").
	Stage string `json:"stage"`

	// Kind classifies the problem (e.g. "synthesis_failed").
	Kind string `json:"kind"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Err is the underlying error, if any. It is not serialized.
	Err error `json:"-"`
}

// String formats the warning as "stage: kind: message".
func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Stage, w.Kind, w.Message)
}

// Log collects warnings. The zero value is ready to use; a nil *Log discards
// warnings after logging them. It is safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	warnings []Warning
	onRecord func(Warning)
}

// New returns a Log that calls onRecord, if non-nil, for every warning.
func New(onRecord func(Warning)) *Log {
	return &Log{onRecord: onRecord}
}

// Warn records a warning and logs it.
func (l *Log) Warn(ctx context.Context, stage, kind string, err error, format string, args ...any) {
	w := Warning{Stage: stage, Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
	attrs := []any{"stage", stage, "kind", kind}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	slog.WarnContext(ctx, w.Message, attrs...)
	if l == nil {
		return
	}
	l.mu.Lock()
	l.warnings = append(l.warnings, w)
	fn := l.onRecord
	l.mu.Unlock()
	if fn != nil {
		fn(w)
	}
}

// Warnings returns a copy of the recorded warnings in order.
func (l *Log) Warnings() []Warning {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Warning(nil), l.warnings...)
}

// Len returns the number of recorded warnings.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warnings)
}
