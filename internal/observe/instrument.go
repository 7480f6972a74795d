package observe

import (
	"context"
	"time"

	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/provider/llm"
	"github.com/MrWong99/castmix/pkg/provider/stt"
	"github.com/MrWong99/castmix/pkg/provider/tts"
	"github.com/MrWong99/castmix/pkg/timeline"
)

// InstrumentTTS records latency and outcome of every synthesis on m.
func InstrumentTTS(p tts.Provider, name string, m *Metrics) tts.Provider {
	return &ttsProvider{next: p, name: name, m: m}
}

type ttsProvider struct {
	next tts.Provider
	name string
	m    *Metrics
}

func (p *ttsProvider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Segment, error) {
	ctx, span := StartSpan(ctx, "tts.synthesize")
	defer span.End()
	start := time.Now()
	seg, err := p.next.Synthesize(ctx, text, voice)
	p.m.RecordProviderCall(ctx, p.name, "tts", time.Since(start), err)
	return seg, err
}

func (p *ttsProvider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return p.next.ListVoices(ctx)
}

// InstrumentLLM records latency and outcome of every completion on m.
func InstrumentLLM(p llm.Provider, name string, m *Metrics) llm.Provider {
	return &llmProvider{next: p, name: name, m: m}
}

type llmProvider struct {
	next llm.Provider
	name string
	m    *Metrics
}

func (p *llmProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := StartSpan(ctx, "llm.complete")
	defer span.End()
	start := time.Now()
	resp, err := p.next.Complete(ctx, req)
	p.m.RecordProviderCall(ctx, p.name, "llm", time.Since(start), err)
	return resp, err
}

// InstrumentSTT records latency and outcome of every transcription on m.
func InstrumentSTT(t stt.Transcriber, name string, m *Metrics) stt.Transcriber {
	return &sttTranscriber{next: t, name: name, m: m}
}

type sttTranscriber struct {
	next stt.Transcriber
	name string
	m    *Metrics
}

func (t *sttTranscriber) Transcribe(ctx context.Context, seg audio.Segment) ([]timeline.Word, error) {
	ctx, span := StartSpan(ctx, "stt.transcribe")
	defer span.End()
	start := time.Now()
	words, err := t.next.Transcribe(ctx, seg)
	t.m.RecordProviderCall(ctx, t.name, "stt", time.Since(start), err)
	return words, err
}

// InstrumentMedia records media lookups on m. Lookups that find nothing are
// counted as ok.
func InstrumentMedia(r media.Resolver, name string, m *Metrics) media.Resolver {
	return &mediaResolver{next: r, name: name, m: m}
}

type mediaResolver struct {
	next media.Resolver
	name string
	m    *Metrics
}

func (r *mediaResolver) Resolve(ctx context.Context, asset string) (audio.Segment, error) {
	start := time.Now()
	seg, err := r.next.Resolve(ctx, asset)
	recorded := err
	if media.IsNotFound(err) {
		recorded = nil
	}
	r.m.RecordProviderCall(ctx, r.name, "media", time.Since(start), recorded)
	return seg, err
}
