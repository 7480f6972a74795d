// Package whisper provides a whisper.cpp-server-backed transcriber.
//
// It connects to a running whisper-server binary (which exposes a REST API at
// POST /inference), uploads the recording as 16 kHz mono WAV and asks for
// verbose JSON so word timings come back with the text. Long recordings are
// split into chunks at the quietest point near each chunk boundary, so words
// are never cut in half by the split.
//
// Usage:
//
//	t, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	words, err := t.Transcribe(ctx, take)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/provider/stt"
	"github.com/MrWong99/castmix/pkg/timeline"
)

const (
	// defaultRMSThreshold is the RMS level (in 16-bit PCM units) below which
	// audio is considered silent. 300 corresponds to near-silence.
	defaultRMSThreshold = 300.0

	defaultLanguage      = "en"
	defaultChunkDuration = 10 * time.Minute
	defaultTimeout       = 5 * time.Minute

	// splitSearch is how far before a chunk boundary the quietest split point
	// is searched for.
	splitSearch = 5 * time.Second

	// windowMs is the analysis window for split-point and silence detection.
	windowMs = 20
)

// inputFormat is what whisper.cpp expects.
var inputFormat = audio.Format{SampleRate: 16000, Channels: 1, SampleWidth: 2}

var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the language code sent to the server (e.g., "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithChunkDuration caps the length of audio sent in one request.
// Defaults to 10 minutes.
func WithChunkDuration(d time.Duration) Option {
	return func(t *Transcriber) {
		t.chunk = d
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 5 minutes.
func WithTimeout(d time.Duration) Option {
	return func(t *Transcriber) {
		t.httpClient.Timeout = d
	}
}

// Transcriber implements stt.Transcriber backed by a whisper.cpp HTTP server.
type Transcriber struct {
	serverURL  string
	model      string
	language   string
	chunk      time.Duration
	httpClient *http.Client
}

// New creates a Transcriber for the whisper.cpp server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		chunk:      defaultChunkDuration,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	if t.chunk <= splitSearch {
		return nil, fmt.Errorf("whisper: chunk duration %s must exceed %s", t.chunk, splitSearch)
	}
	return t, nil
}

// Transcribe converts seg to 16 kHz mono, sends it in chunks and merges the
// word timings back onto seg's time axis. Silent chunks are skipped without a
// request.
func (t *Transcriber) Transcribe(ctx context.Context, seg audio.Segment) ([]timeline.Word, error) {
	pcm := seg.ConvertTo(inputFormat)
	var words []timeline.Word
	prev := 0.0
	for _, c := range splitPoints(pcm, t.chunk) {
		part := pcm.SliceFrames(c.start, c.end)
		if isSilent(part) {
			continue
		}
		offset := float64(c.start) / float64(inputFormat.SampleRate)
		got, err := t.infer(ctx, part)
		if err != nil {
			return nil, err
		}
		for _, w := range got {
			// Keep the sequence monotonic across segment and chunk seams.
			w.Start = max(w.Start+offset, prev)
			w.End = max(w.End+offset, w.Start)
			prev = w.Start
			words = append(words, w)
		}
	}
	return words, nil
}

type chunkRange struct{ start, end int }

// splitPoints divides seg into ranges of at most max, moving each boundary
// back to the quietest window in the preceding splitSearch.
func splitPoints(seg audio.Segment, maxDur time.Duration) []chunkRange {
	rate := seg.Format().SampleRate
	total := seg.Frames()
	maxFrames := int(maxDur.Seconds() * float64(rate))
	search := int(splitSearch.Seconds() * float64(rate))
	win := rate * windowMs / 1000

	var out []chunkRange
	for start := 0; start < total; {
		end := start + maxFrames
		if end >= total {
			out = append(out, chunkRange{start, total})
			break
		}
		best, bestRMS := end, math.Inf(1)
		for w := end - search; w+win <= end; w += win {
			if rms := seg.RMS(w, w+win); rms < bestRMS {
				best, bestRMS = w+win/2, rms
			}
		}
		out = append(out, chunkRange{start, best})
		start = best
	}
	return out
}

// isSilent reports whether no analysis window of seg rises above the silence
// threshold.
func isSilent(seg audio.Segment) bool {
	win := seg.Format().SampleRate * windowMs / 1000
	for w := 0; w < seg.Frames(); w += win {
		if seg.RMS(w, w+win) > defaultRMSThreshold {
			return false
		}
	}
	return true
}

// inferenceResponse is the verbose_json body returned by /inference.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
}

// infer uploads seg as WAV to the /inference endpoint as multipart/form-data.
func (t *Transcriber) infer(ctx context.Context, seg audio.Segment) ([]timeline.Word, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if err := audio.WriteWAV(fw, seg); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        t.language,
		"model":           t.model,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.words(), nil
}

// words flattens the response into timeline words. Segments without word
// timings have their text spread evenly over the segment.
func (r inferenceResponse) words() []timeline.Word {
	var out []timeline.Word
	for _, s := range r.Segments {
		if len(s.Words) > 0 {
			for _, w := range s.Words {
				text := strings.TrimSpace(w.Word)
				if text == "" {
					continue
				}
				out = append(out, timeline.Word{Text: text, Start: w.Start, End: max(w.End, w.Start)})
			}
			continue
		}
		tokens := strings.Fields(s.Text)
		if len(tokens) == 0 {
			continue
		}
		step := max(s.End-s.Start, 0) / float64(len(tokens))
		for i, tok := range tokens {
			start := s.Start + float64(i)*step
			out = append(out, timeline.Word{Text: tok, Start: start, End: start + step})
		}
	}
	return out
}
