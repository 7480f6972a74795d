// Package coqui provides a TTS provider backed by a locally running Coqui
// server. It implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters; the voice catalogue comes from GET /details.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is performed
//     via POST /tts_to_audio/ with a JSON body; the voice catalogue comes from
//     GET /studio_speakers.
//
// Both servers answer with a complete WAV file per utterance, which is decoded
// into an audio.Segment at the model's native rate.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	seg, err := p.Synthesize(ctx, "Welcome back to the show.", voice)
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	providerName           = "coqui"
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server (e.g., "en",
// "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
}

// New creates a Coqui Provider that targets the server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.apiMode)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize renders text with a single HTTP request and decodes the WAV
// response. XTTS mode requires voice.ID; standard mode uses it as the
// speaker for multi-speaker models.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Segment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Segment{}, tts.Fail(providerName, voice, tts.ErrEmptyText)
	}
	if voice.ID == "" && p.apiMode == APIModeXTTS {
		return audio.Segment{}, tts.Fail(providerName, voice, errors.New("voice ID is required in XTTS mode"))
	}

	var req *http.Request
	var err error
	if p.apiMode == APIModeStandard {
		req, err = p.standardRequest(ctx, text, voice)
	} else {
		req, err = p.xttsRequest(ctx, text, voice)
	}
	if err != nil {
		return audio.Segment{}, tts.Fail(providerName, voice, err)
	}

	wav, err := p.do(req)
	if err != nil {
		return audio.Segment{}, tts.Fail(providerName, voice, err)
	}
	seg, err := audio.DecodeWAV(wav)
	if err != nil {
		return audio.Segment{}, tts.Fail(providerName, voice, fmt.Errorf("decode WAV response: %w", err))
	}
	return seg, nil
}

func (p *Provider) xttsRequest(ctx context.Context, text string, voice tts.VoiceProfile) (*http.Request, error) {
	data, err := json.Marshal(ttsRequest{
		Text:       text,
		SpeakerWav: voice.ID,
		Language:   p.language,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")
	return req, nil
}

func (p *Provider) standardRequest(ctx context.Context, text string, voice tts.VoiceProfile) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", text)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")
	return req, nil
}

// do executes req and returns the body of a 200 response.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	return body, nil
}

// ListVoices retrieves the available voices from the Coqui server.
//
// In APIModeXTTS it calls GET /studio_speakers. In APIModeStandard it calls
// GET /details and returns one profile per speaker for multi-speaker models,
// or a single profile named after the model otherwise.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	endpoint := detailsEndpoint
	if p.apiMode == APIModeXTTS {
		endpoint = studioSpeakersEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	if p.apiMode == APIModeXTTS {
		return parseStudioSpeakers(body)
	}
	return parseDetails(body)
}

func parseStudioSpeakers(body []byte) ([]tts.VoiceProfile, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("coqui: decode studio speakers: %w", err)
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	profiles := make([]tts.VoiceProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       name,
			Name:     name,
			Provider: providerName,
			Metadata: map[string]string{"type": "studio"},
		})
	}
	return profiles, nil
}

func parseDetails(body []byte) ([]tts.VoiceProfile, error) {
	var details detailsResponse
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}

	if len(details.Speakers) > 0 {
		speakers := append([]string(nil), details.Speakers...)
		sort.Strings(speakers)

		profiles := make([]tts.VoiceProfile, 0, len(speakers))
		for _, spk := range speakers {
			profiles = append(profiles, tts.VoiceProfile{
				ID:       spk,
				Name:     spk,
				Provider: providerName,
				Metadata: map[string]string{
					"type":       "speaker",
					"model_name": details.ModelName,
				},
			})
		}
		return profiles, nil
	}

	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []tts.VoiceProfile{{
		ID:       name,
		Name:     name,
		Provider: providerName,
		Metadata: map[string]string{
			"type":       "single-speaker",
			"model_name": name,
		},
	}}, nil
}
