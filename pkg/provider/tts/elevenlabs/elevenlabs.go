// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
//
// Each Synthesize call opens one socket, sends the whole utterance followed by
// a flush and collects the streamed PCM chunks until the server marks the
// stream final.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	providerName     = "elevenlabs"
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"

	// readLimit bounds a single socket message; base64 audio chunks routinely
	// exceed the library default of 32 KiB.
	readLimit = 4 << 20
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the PCM output format (e.g., "pcm_16000", "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the API base URL. The WebSocket URL is derived from
// it by swapping the scheme.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	baseURL      string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if _, err := parseOutputFormat(p.outputFormat); err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	return p, nil
}

// textMessage is the JSON payload sent for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// boiMessage is the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// audioResponse is one server message.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// parseOutputFormat maps "pcm_<rate>" to a mono 16-bit format.
func parseOutputFormat(s string) (audio.Format, error) {
	rate, ok := strings.CutPrefix(s, "pcm_")
	if !ok {
		return audio.Format{}, fmt.Errorf("output format %q is not raw PCM", s)
	}
	hz, err := strconv.Atoi(rate)
	if err != nil || hz <= 0 {
		return audio.Format{}, fmt.Errorf("output format %q has no valid sample rate", s)
	}
	return audio.Format{SampleRate: hz, Channels: 1, SampleWidth: 2}, nil
}

// streamURL builds the WebSocket URL for a voice.
func (p *Provider) streamURL(voiceID string) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path += "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input"
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Synthesize streams text over one WebSocket session and returns the
// collected PCM.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Segment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Segment{}, tts.Fail(providerName, voice, tts.ErrEmptyText)
	}
	if voice.ID == "" {
		return audio.Segment{}, tts.Fail(providerName, voice, errors.New("voice ID must not be empty"))
	}
	pcm, err := p.stream(ctx, text, voice)
	if err != nil {
		return audio.Segment{}, tts.Fail(providerName, voice, err)
	}
	f, _ := parseOutputFormat(p.outputFormat)
	seg, err := audio.NewSegment(f, pcm)
	if err != nil {
		return audio.Segment{}, tts.Fail(providerName, voice, err)
	}
	return seg, nil
}

func (p *Provider) stream(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	wsURL, err := p.streamURL(voice.ID)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: voice.SpeedFactor}
	msgs := []any{
		// ElevenLabs requires a non-empty first text value.
		boiMessage{Text: " ", VoiceSettings: vs, XiAPIKey: p.apiKey},
		// Text chunks must end with a space.
		textMessage{Text: text + " ", Flush: true},
		// End of input.
		textMessage{Text: ""},
	}
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return nil, fmt.Errorf("write: %w", err)
		}
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(pcm) > 0 {
				return pcm, nil
			}
			return nil, fmt.Errorf("read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("server error: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("decode audio chunk: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			conn.Close(websocket.StatusNormalClosure, "done")
			if len(pcm) == 0 {
				return nil, errors.New("stream ended without audio")
			}
			return pcm, nil
		}
	}
}

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}

	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		maps.Copy(meta, v.Labels)
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: providerName,
			Metadata: meta,
		})
	}
	return profiles, nil
}
