package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Timestamp formats seconds as hh:mm:ss.mmm.
func Timestamp(sec float64) string {
	ms := int64(math.Round(max(0, sec) * 1000))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// WriteText writes one line per phrase: "[hh:mm:ss.mmm] Speaker: text".
// Phrases without a speaker omit the prefix; responses are marked
// "[response]".
func WriteText(w io.Writer, t Transcript) error {
	bw := bufio.NewWriter(w)
	for _, p := range t.Phrases {
		text := p.Text
		if p.Kind == Response {
			text = "[response] " + text
		}
		if p.Speaker != "" {
			fmt.Fprintf(bw, "[%s] %s: %s\n", Timestamp(p.Start), p.Speaker, text)
		} else {
			fmt.Fprintf(bw, "[%s] %s\n", Timestamp(p.Start), text)
		}
	}
	return bw.Flush()
}

// WriteJSON writes t as indented JSON.
func WriteJSON(w io.Writer, t Transcript) error {
	if t.Phrases == nil {
		t.Phrases = []Phrase{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

// WriteFiles writes every transcript to dir as transcript_<variant>.json and
// transcript_<variant>.txt and returns the paths written.
func WriteFiles(dir string, ts ...Transcript) ([]string, error) {
	var paths []string
	for _, t := range ts {
		base := filepath.Join(dir, "transcript_"+string(t.Variant))
		for _, out := range []struct {
			ext   string
			write func(io.Writer, Transcript) error
		}{
			{".json", WriteJSON},
			{".txt", WriteText},
		} {
			path := base + out.ext
			if err := writeFile(path, t, out.write); err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func writeFile(path string, t Transcript, write func(io.Writer, Transcript) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("transcript: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("transcript: %w", cerr)
		}
	}()
	if err := write(f, t); err != nil {
		return fmt.Errorf("transcript: write %s: %w", path, err)
	}
	return nil
}
