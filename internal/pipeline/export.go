package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"

	"github.com/MrWong99/castmix/internal/cleanup"
	"github.com/MrWong99/castmix/internal/command"
	"github.com/MrWong99/castmix/internal/degrade"
	"github.com/MrWong99/castmix/internal/intern"
	"github.com/MrWong99/castmix/internal/sfx"
	"github.com/MrWong99/castmix/internal/template"
	"github.com/MrWong99/castmix/internal/transcript"
	"github.com/MrWong99/castmix/pkg/audio"
)

// Output file names.
const (
	TakeFile     = "take.wav"
	EpisodeFile  = "episode.wav"
	ManifestFile = "manifest.json"
	lockFile     = ".castmix.lock"
)

// ErrOutputLocked is returned when another run is exporting to the same
// directory.
var ErrOutputLocked = errors.New("pipeline: output directory is locked by another run")

// Manifest describes an exported run.
type Manifest struct {
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
	Template   string    `json:"template"`
	DurationMs int64     `json:"duration_ms"`

	Counts          map[command.Kind]int `json:"counts"`
	Transcribed     bool                 `json:"transcribed"`
	Cleanup         cleanup.Summary      `json:"cleanup"`
	Responses       []intern.Response    `json:"responses"`
	Effects         []sfx.Effect         `json:"effects"`
	SilenceRemovedS float64              `json:"silence_removed_s"`

	Placements []template.Placement `json:"placements"`
	Music      []template.Bed       `json:"music"`

	Warnings []degrade.Warning `json:"warnings"`

	// Files are the written file names relative to the output directory.
	Files []string `json:"files"`
}

// Export writes res to dir: the edited take, the episode, the three
// transcript variants and a manifest. The directory is created if needed and
// locked for the duration of the export.
func Export(dir, templateName string, res *Result) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: export: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("pipeline: export: acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, dir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("failed to release output lock", "dir", dir, "err", err)
		}
	}()

	m := &Manifest{
		RunID:           res.RunID,
		CreatedAt:       time.Now().UTC(),
		Template:        templateName,
		DurationMs:      res.Mix.Audio.DurationMs(),
		Counts:          res.Detection.Counts,
		Transcribed:     res.Transcribed,
		Cleanup:         res.Cleanup,
		Responses:       res.Responses,
		Effects:         res.Effects,
		SilenceRemovedS: res.SilenceRemoved,
		Placements:      res.Mix.Placements,
		Music:           res.Mix.Music,
		Warnings:        res.Warnings,
	}

	var total int64
	for _, f := range []struct {
		name string
		seg  audio.Segment
	}{
		{TakeFile, res.Take},
		{EpisodeFile, res.Mix.Audio},
	} {
		data := audio.EncodeWAV(f.seg)
		if err := os.WriteFile(filepath.Join(dir, f.name), data, 0o644); err != nil {
			return nil, fmt.Errorf("pipeline: export: %w", err)
		}
		total += int64(len(data))
		m.Files = append(m.Files, f.name)
	}

	paths, err := transcript.WriteFiles(dir, res.Transcripts...)
	if err != nil {
		return nil, fmt.Errorf("pipeline: export: %w", err)
	}
	for _, p := range paths {
		m.Files = append(m.Files, filepath.Base(p))
	}
	m.Files = append(m.Files, ManifestFile)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("pipeline: export: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("pipeline: export: %w", err)
	}

	slog.Info("episode exported",
		"run_id", res.RunID,
		"dir", dir,
		"files", len(m.Files),
		"audio_size", humanize.IBytes(uint64(total)),
	)
	return m, nil
}
