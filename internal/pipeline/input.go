package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/castmix/internal/command"
	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/internal/template"
	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// Files names the inputs of one run. Only Take is required. Take is a file
// path or a logical media name; the other fields are file paths.
type Files struct {
	Take      string `json:"take"`
	Words     string `json:"words,omitempty"`
	Template  string `json:"template,omitempty"`
	Overrides string `json:"overrides,omitempty"`
}

// Load reads and decodes every named file into an [Input]. The take is
// resolved with [LoadTake] through r, which may be nil. The run flags are
// left for the caller.
func (f Files) Load(ctx context.Context, r media.Resolver) (Input, error) {
	var in Input
	if f.Take == "" {
		return in, errors.New("pipeline: no take file")
	}
	take, err := LoadTake(ctx, r, f.Take)
	if err != nil {
		return in, err
	}
	in.Take = take
	if f.Words != "" {
		if in.Words, err = LoadWords(f.Words); err != nil {
			return in, err
		}
	}
	if f.Template != "" {
		if in.Template, err = template.Load(f.Template); err != nil {
			return in, err
		}
	}
	if f.Overrides != "" {
		if in.Overrides, err = LoadOverrides(f.Overrides); err != nil {
			return in, err
		}
	}
	return in, nil
}

// LoadTake decodes the source recording. An existing file at name is read
// directly; otherwise name is resolved through r with its alias, extension
// and catalog search. A take found nowhere yields a [*media.NotFoundError]
// listing every location tried.
func LoadTake(ctx context.Context, r media.Resolver, name string) (audio.Segment, error) {
	data, err := os.ReadFile(name)
	switch {
	case err == nil:
		seg, err := media.Decode(media.EncodingOf(name), data)
		if err != nil {
			return audio.Segment{}, fmt.Errorf("pipeline: decode take %s: %w", name, err)
		}
		return seg, nil
	case !errors.Is(err, fs.ErrNotExist):
		return audio.Segment{}, fmt.Errorf("pipeline: read take: %w", err)
	}

	tried := []string{name}
	if r != nil {
		seg, err := r.Resolve(ctx, name)
		if err == nil {
			return seg, nil
		}
		var nf *media.NotFoundError
		if !errors.As(err, &nf) {
			return audio.Segment{}, fmt.Errorf("pipeline: resolve take: %w", err)
		}
		tried = append(tried, nf.Tried...)
	}
	return audio.Segment{}, fmt.Errorf("pipeline: take: %w", &media.NotFoundError{Name: name, Tried: tried})
}

// LoadWords reads a JSON word list: [{"text", "start", "end", "speaker"}].
// Extra fields written by transcription tools are ignored.
func LoadWords(path string) ([]timeline.Word, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read words: %w", err)
	}
	var words []timeline.Word
	if err := json.Unmarshal(data, &words); err != nil {
		return nil, fmt.Errorf("pipeline: decode words %s: %w", path, err)
	}
	return words, nil
}

// LoadOverrides reads intern overrides from a YAML or JSON list.
func LoadOverrides(path string) ([]command.Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read overrides: %w", err)
	}
	var out []command.Override
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("pipeline: decode overrides %s: %w", path, err)
	}
	return out, nil
}
