package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/pkg/audio"
)

var _ Resolver = (*FileResolver)(nil)

// FileResolver finds assets on the local file system.
//
// For a name it tries the name itself and then each configured alias. Each
// candidate is looked up under every root in order; a candidate without an
// extension is tried with each configured extension. Absolute candidates are
// used directly. Relative candidates that escape their root are ignored.
type FileResolver struct {
	roots      []string
	extensions []string
	aliases    map[string][]string
}

// NewFileResolver creates a resolver from the media config section.
func NewFileResolver(cfg config.MediaConfig) *FileResolver {
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = config.DefaultExtensions
	}
	return &FileResolver{roots: cfg.Roots, extensions: exts, aliases: cfg.Aliases}
}

// Resolve implements [Resolver].
func (r *FileResolver) Resolve(ctx context.Context, name string) (audio.Segment, error) {
	nf := &NotFoundError{Name: name}
	for _, path := range r.candidates(name) {
		if err := ctx.Err(); err != nil {
			return audio.Segment{}, err
		}
		nf.Tried = append(nf.Tried, path)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return audio.Segment{}, fmt.Errorf("media: read %s: %w", path, err)
		}
		seg, err := Decode(EncodingOf(path), data)
		if err != nil {
			return audio.Segment{}, fmt.Errorf("media: %s: %w", path, err)
		}
		slog.Debug("media resolved", "name", name, "path", path, "duration_ms", seg.DurationMs())
		return seg, nil
	}
	return audio.Segment{}, nf
}

// candidates lists file paths to try for name, in order.
func (r *FileResolver) candidates(name string) []string {
	var out []string
	for _, c := range append([]string{name}, r.aliases[name]...) {
		if c == "" {
			continue
		}
		names := []string{c}
		if filepath.Ext(c) == "" {
			names = names[:0]
			for _, ext := range r.extensions {
				names = append(names, c+ext)
			}
		}
		for _, n := range names {
			if filepath.IsAbs(n) {
				out = append(out, filepath.Clean(n))
				continue
			}
			if !filepath.IsLocal(n) {
				continue
			}
			for _, root := range r.roots {
				out = append(out, filepath.Join(root, n))
			}
		}
	}
	return out
}
