package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/pkg/audio"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFiles_Load(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	take := filepath.Join(dir, "take.wav")
	if err := os.WriteFile(take, audio.EncodeWAV(tone(t, 250, 7)), 0o644); err != nil {
		t.Fatal(err)
	}
	f := Files{
		Take:      take,
		Words:     writeFile(t, dir, "words.json", `[{"text":"hi","start":0,"end":0.2,"speaker":"Host","confidence":0.9}]`),
		Template:  writeFile(t, dir, "show.yaml", "name: show\nsegments:\n  - kind: content\n"),
		Overrides: writeFile(t, dir, "overrides.yaml", "- ordinal: 0\n  response: Hello\n"),
	}
	in, err := f.Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if in.Take.DurationMs() != 250 {
		t.Errorf("take = %d ms", in.Take.DurationMs())
	}
	if len(in.Words) != 1 || in.Words[0].Speaker != "Host" {
		t.Errorf("words = %+v", in.Words)
	}
	if in.Template == nil || in.Template.Name != "show" {
		t.Errorf("template = %+v", in.Template)
	}
	if len(in.Overrides) != 1 || *in.Overrides[0].Ordinal != 0 || in.Overrides[0].Response != "Hello" {
		t.Errorf("overrides = %+v", in.Overrides)
	}
}

func TestFiles_LoadErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	take := filepath.Join(dir, "take.wav")
	if err := os.WriteFile(take, audio.EncodeWAV(tone(t, 10, 1)), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		files Files
	}{
		{"no take", Files{}},
		{"missing take", Files{Take: filepath.Join(dir, "nope.wav")}},
		{"unsupported take", Files{Take: writeFile(t, dir, "take.flac", "x")}},
		{"bad words", Files{Take: take, Words: writeFile(t, dir, "w.json", `{"text":"hi"}`)}},
		{"unknown override field", Files{Take: take, Overrides: writeFile(t, dir, "o.yaml", "- reply: hi\n")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tt.files.Load(context.Background(), nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadTake_ThroughResolver(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "ep42-raw.wav"), audio.EncodeWAV(tone(t, 300, 3)), 0o644); err != nil {
		t.Fatal(err)
	}
	r := media.Chain(
		media.Static{"episode-7": tone(t, 120, 2)},
		media.NewFileResolver(config.MediaConfig{
			Roots:   []string{root},
			Aliases: map[string][]string{"episode-42": {"ep42-raw"}},
		}),
	)

	tests := []struct {
		name   string
		wantMs int64
	}{
		{"episode-7", 120},
		{"episode-42", 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			seg, err := LoadTake(context.Background(), r, tt.name)
			if err != nil {
				t.Fatalf("LoadTake: %v", err)
			}
			if seg.DurationMs() != tt.wantMs {
				t.Errorf("duration = %d ms, want %d", seg.DurationMs(), tt.wantMs)
			}
		})
	}
}

func TestLoadTake_NotFound(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		resolver  media.Resolver
		wantTried []string
	}{
		{"no resolver", nil, []string{"episode-42"}},
		{"resolver miss", media.Static{}, []string{"episode-42", "memory"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Files{Take: "episode-42"}.Load(context.Background(), tt.resolver)
			var nf *media.NotFoundError
			if !errors.As(err, &nf) {
				t.Fatalf("err = %v, want *media.NotFoundError", err)
			}
			if nf.Name != "episode-42" || !slices.Equal(nf.Tried, tt.wantTried) {
				t.Errorf("not found = %+v, want tried %v", nf, tt.wantTried)
			}
		})
	}
}

func TestLoadTake_BackendError(t *testing.T) {
	t.Parallel()
	boom := errors.New("catalog down")
	r := resolverFunc(func(context.Context, string) (audio.Segment, error) { return audio.Segment{}, boom })
	_, err := LoadTake(context.Background(), r, "episode-42")
	if !errors.Is(err, boom) || media.IsNotFound(err) {
		t.Errorf("err = %v, want the backend error", err)
	}
}

type resolverFunc func(context.Context, string) (audio.Segment, error)

func (f resolverFunc) Resolve(ctx context.Context, name string) (audio.Segment, error) {
	return f(ctx, name)
}
