// Package media resolves logical asset names (intro stingers, music beds,
// sound effects, pre-rendered responses) to decoded audio.
//
// Two resolvers exist: [FileResolver] searches configured directories with
// alias and extension fallbacks, [CatalogResolver] looks assets up in a
// PostgreSQL table. [Chain] combines them.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/castmix/pkg/audio"
)

// Resolver turns a logical asset name into audio.
type Resolver interface {
	// Resolve returns the decoded asset. A missing asset yields a
	// [*NotFoundError]; decoding or backend failures are returned as-is.
	Resolve(ctx context.Context, name string) (audio.Segment, error)
}

// NotFoundError reports an asset that no location provided.
type NotFoundError struct {
	Name string

	// Tried lists the locations searched, in order.
	Tried []string
}

func (e *NotFoundError) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("media: %q not found", e.Name)
	}
	return fmt.Sprintf("media: %q not found (tried %s)", e.Name, strings.Join(e.Tried, ", "))
}

// IsNotFound reports whether err wraps a [*NotFoundError].
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Chain returns a resolver that asks each resolver in order and returns the
// first hit. Only not-found errors move on to the next resolver.
func Chain(resolvers ...Resolver) Resolver {
	return chain(resolvers)
}

type chain []Resolver

func (c chain) Resolve(ctx context.Context, name string) (audio.Segment, error) {
	nf := &NotFoundError{Name: name}
	for _, r := range c {
		seg, err := r.Resolve(ctx, name)
		if err == nil {
			return seg, nil
		}
		var inner *NotFoundError
		if !errors.As(err, &inner) {
			return audio.Segment{}, err
		}
		nf.Tried = append(nf.Tried, inner.Tried...)
	}
	return audio.Segment{}, nf
}

// Static is an in-memory resolver keyed by name.
type Static map[string]audio.Segment

// Resolve implements [Resolver].
func (s Static) Resolve(_ context.Context, name string) (audio.Segment, error) {
	seg, ok := s[name]
	if !ok {
		return audio.Segment{}, &NotFoundError{Name: name, Tried: []string{"memory"}}
	}
	return seg, nil
}
