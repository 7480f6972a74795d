package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] failed or was
// skipped because its breaker is open.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the breaker created for each entry of a
// [FallbackGroup]. The breaker Name is overwritten with the entry name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// EntryStatus describes one entry of a [FallbackGroup].
type EntryStatus struct {
	Name  string
	State State
}

// FallbackGroup holds a primary and zero or more fallbacks of one provider
// type. Calls go to the first entry whose breaker admits them; on failure the
// next entry is tried in registration order.
//
// Entries must be registered before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry. Fallbacks are tried after the primary in the
// order they were added.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Status reports the breaker state of every entry in order.
func (fg *FallbackGroup[T]) Status() []EntryStatus {
	out := make([]EntryStatus, len(fg.entries))
	for i, e := range fg.entries {
		out[i] = EntryStatus{Name: e.name, State: e.breaker.State()}
	}
	return out
}

// Primary returns the first entry's value and name.
func (fg *FallbackGroup[T]) Primary() (T, string) {
	return fg.entries[0].value, fg.entries[0].name
}

// Execute tries fn against each entry until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteNamed(context.Background(), fg, "", func(_ string, v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry until one succeeds and
// returns its result.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	return ExecuteNamed(context.Background(), fg, "", func(_ string, v T) (R, error) {
		return fn(v)
	})
}

// ExecuteNamed is [ExecuteWithResult] with two additions: the entry named
// prefer, when present, is tried first, and fn receives the entry name so it
// can adapt provider-specific arguments. Iteration stops early once ctx is
// done. When every entry fails the result wraps [ErrAllFailed] and carries the
// last error's text.
func ExecuteNamed[T any, R any](ctx context.Context, fg *FallbackGroup[T], prefer string, fn func(name string, v T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, i := range fg.order(prefer) {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%w: %w", ErrAllFailed, err)
		}
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(entry.name, entry.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider with open circuit", "provider", entry.name)
			continue
		}
		slog.Warn("provider failed, trying next", "provider", entry.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// order returns entry indices with the entry named prefer moved to the front.
func (fg *FallbackGroup[T]) order(prefer string) []int {
	idx := make([]int, 0, len(fg.entries))
	first := -1
	if prefer != "" {
		for i, e := range fg.entries {
			if e.name == prefer {
				first = i
				idx = append(idx, i)
				break
			}
		}
	}
	for i := range fg.entries {
		if i != first {
			idx = append(idx, i)
		}
	}
	return idx
}
