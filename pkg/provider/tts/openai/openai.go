// Package openai provides a TTS provider backed by the OpenAI speech endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/provider/tts"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelTTS1

const providerName = "openai"

// pcmFormat is the fixed format of "pcm" responses.
var pcmFormat = audio.Format{SampleRate: 24000, Channels: 1, SampleWidth: 2}

// builtinVoices is the voice catalogue of the speech endpoint, which has no
// listing API.
var builtinVoices = []oai.AudioSpeechNewParamsVoice{
	oai.AudioSpeechNewParamsVoiceAlloy,
	oai.AudioSpeechNewParamsVoiceAsh,
	oai.AudioSpeechNewParamsVoiceBallad,
	oai.AudioSpeechNewParamsVoiceCoral,
	oai.AudioSpeechNewParamsVoiceEcho,
	"fable",
	"onyx",
	"nova",
	oai.AudioSpeechNewParamsVoiceSage,
	oai.AudioSpeechNewParamsVoiceShimmer,
	oai.AudioSpeechNewParamsVoiceVerse,
}

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries failed requests.
// Negative values keep the client default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs an OpenAI TTS Provider. If model is empty, DefaultModel
// (tts-1) is used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Synthesize requests raw PCM for text. The result is 24 kHz mono 16-bit.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Segment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Segment{}, tts.Fail(providerName, voice, tts.ErrEmptyText)
	}
	id := voice.ID
	if id == "" {
		id = string(oai.AudioSpeechNewParamsVoiceAlloy)
	}

	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          p.model,
		Voice:          oai.AudioSpeechNewParamsVoice(id),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.SpeedFactor > 0 {
		params.Speed = param.NewOpt(voice.SpeedFactor)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return audio.Segment{}, tts.Fail(providerName, voice, fmt.Errorf("speech request: %w", err))
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Segment{}, tts.Fail(providerName, voice, fmt.Errorf("read speech response: %w", err))
	}
	if len(pcm) == 0 {
		return audio.Segment{}, tts.Fail(providerName, voice, errors.New("empty speech response"))
	}
	seg, err := audio.NewSegment(pcmFormat, pcm)
	if err != nil {
		return audio.Segment{}, tts.Fail(providerName, voice, err)
	}
	return seg, nil
}

// ListVoices returns the fixed catalogue of built-in voices.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	out := make([]tts.VoiceProfile, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		out = append(out, tts.VoiceProfile{
			ID:       string(v),
			Name:     string(v),
			Provider: providerName,
			Metadata: map[string]string{"model": p.model},
		})
	}
	return out, nil
}
