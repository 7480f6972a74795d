// Package pipeline runs one episode end to end.
//
// Stages run in a fixed order on a single goroutine: transcription fallback,
// command detection, cleanup, reconstruction, intern responses, sound
// effects, silence compression, template mixing and transcript rendering.
// Fatal problems are returned as errors; recoverable ones are collected in
// [Result.Warnings].
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/castmix/internal/cleanup"
	"github.com/MrWong99/castmix/internal/command"
	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/internal/degrade"
	"github.com/MrWong99/castmix/internal/intern"
	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/internal/observe"
	"github.com/MrWong99/castmix/internal/reconstruct"
	"github.com/MrWong99/castmix/internal/sfx"
	"github.com/MrWong99/castmix/internal/silence"
	"github.com/MrWong99/castmix/internal/template"
	"github.com/MrWong99/castmix/internal/transcript"
	"github.com/MrWong99/castmix/pkg/audio"
	"github.com/MrWong99/castmix/pkg/provider/llm"
	"github.com/MrWong99/castmix/pkg/provider/stt"
	"github.com/MrWong99/castmix/pkg/provider/tts"
	"github.com/MrWong99/castmix/pkg/timeline"
)

const stage = "pipeline"

// ErrTranscriptUnavailable is recorded as a warning when a run has no words
// and transcription is not allowed or failed. The run continues without
// transcript-driven edits.
var ErrTranscriptUnavailable = errors.New("pipeline: transcript unavailable")

// ResponseSpeaker labels intern responses in transcripts.
const ResponseSpeaker = "Intern"

// Input is one episode to assemble.
type Input struct {
	// Take is the raw recording.
	Take audio.Segment

	// Words is the transcript of Take. Nil means none was supplied.
	Words []timeline.Word

	// Template lays out the episode. Nil mixes the take alone.
	Template *template.Template

	// Overrides are pre-approved intern responses.
	Overrides []command.Override

	// MixOnly skips transcript-driven edits unless Force is set.
	MixOnly bool
	Force   bool

	// AllowTranscription lets the configured transcriber produce words when
	// none were supplied.
	AllowTranscription bool
}

// Result is an assembled episode.
type Result struct {
	RunID string `json:"run_id"`

	// Transcribed reports that the words came from the transcriber.
	Transcribed bool `json:"transcribed"`

	Detection command.Detection `json:"detection"`
	Cleanup   cleanup.Summary   `json:"cleanup"`
	Responses []intern.Response `json:"responses"`
	Effects   []sfx.Effect      `json:"effects"`

	Gaps           []silence.Gap `json:"gaps"`
	SilenceRemoved float64       `json:"silence_removed_s"`

	// Take is the edited take before template mixing.
	Take audio.Segment `json:"-"`

	// Words are the surviving words in Take time.
	Words []timeline.Word `json:"-"`

	Mix *template.Output `json:"mix"`

	Transcripts []transcript.Transcript `json:"-"`

	Warnings []degrade.Warning `json:"warnings"`
}

// Pipeline assembles episodes with one configuration. It holds no per-run
// state and is safe for concurrent use.
type Pipeline struct {
	cfg         *config.Config
	detector    *command.Detector
	media       media.Resolver
	tts         tts.Provider
	llm         llm.Provider
	transcriber stt.Transcriber
	metrics     *observe.Metrics
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithMedia sets the resolver for template assets, override audio and sound
// effects.
func WithMedia(r media.Resolver) Option { return func(p *Pipeline) { p.media = r } }

// WithTTS sets the synthesizer for intern responses and tts segments.
func WithTTS(t tts.Provider) Option { return func(p *Pipeline) { p.tts = t } }

// WithLLM lets intern commands be answered by a model.
func WithLLM(l llm.Provider) Option { return func(p *Pipeline) { p.llm = l } }

// WithTranscriber sets the transcription fallback.
func WithTranscriber(t stt.Transcriber) Option { return func(p *Pipeline) { p.transcriber = t } }

// WithMetrics records stage and episode metrics on m.
func WithMetrics(m *observe.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// New creates a pipeline for cfg. cfg must have defaults applied.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, detector: command.New(cfg.Cleanup)}
	for _, o := range opts {
		o(p)
	}
	return p
}

// voice returns the default synthesis voice.
func (p *Pipeline) voice() tts.VoiceProfile {
	v := p.cfg.Cleanup.Intern.Voice
	return tts.VoiceProfile{ID: v.VoiceID, Provider: v.Provider, SpeedFactor: v.SpeedFactor}
}

// Load reads the inputs named by f, resolving the take through the
// pipeline's media resolver.
func (p *Pipeline) Load(ctx context.Context, f Files) (Input, error) {
	return f.Load(ctx, p.media)
}

// Run assembles one episode.
func (p *Pipeline) Run(ctx context.Context, in Input) (res *Result, err error) {
	runID := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "episode", trace.WithAttributes(observe.Attr("run_id", runID)))
	defer span.End()
	log := observe.Logger(ctx).With("run_id", runID)

	if p.metrics != nil {
		p.metrics.ActiveEpisodes.Add(ctx, 1)
		defer p.metrics.ActiveEpisodes.Add(ctx, -1)
		defer func() {
			if err != nil {
				p.metrics.RecordEpisode(ctx, false, 0, 0)
				return
			}
			p.metrics.RecordEpisode(ctx, true, res.SilenceRemoved, int64(res.Mix.Audio.Len()))
		}()
	}

	warnings := degrade.New(func(w degrade.Warning) {
		if p.metrics != nil {
			p.metrics.RecordDegradation(ctx, w.Stage, w.Kind)
		}
	})
	res = &Result{RunID: runID}
	start := time.Now()

	words, err := p.words(ctx, in, warnings, res)
	if err != nil {
		return nil, err
	}
	source := append([]timeline.Word(nil), words...)

	// Detection.
	sctx, end := observe.StartStage(ctx, p.metrics, "detect")
	res.Detection = p.detector.Detect(words, command.Options{
		MixOnly:   in.MixOnly || len(words) == 0,
		Force:     in.Force && len(words) > 0,
		Overrides: in.Overrides,
	})
	if n := res.Detection.UnusedOverrides; n > 0 {
		warnings.Warn(sctx, "detect", "override_unmatched", nil, "%d intern override(s) matched no command", n)
	}
	end(nil)

	// Transcript edits.
	sctx, end = observe.StartStage(ctx, p.metrics, "cleanup")
	tl, err := timeline.New(words)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	tl = tl.Handoff("cleanup")
	res.Cleanup, err = cleanup.Apply(tl, res.Detection, p.cfg.Cleanup)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	tl = tl.Handoff("intern")
	stripped := intern.Blank(tl, res.Detection.Commands, p.cfg.Cleanup.Intern)
	tl = tl.Handoff("sfx")
	cues := sfx.Blank(tl, res.Detection.Commands)
	log.DebugContext(sctx, "transcript edited",
		"fillers", res.Cleanup.FillerWords,
		"rolled_back", res.Cleanup.RolledBackWords,
		"instruction_words", stripped,
		"sfx_words", cues,
		"version", tl.Version(),
	)
	end(nil)
	edited := tl.Handoff("reconstruct").Words()

	// Audio edits.
	sctx, end = observe.StartStage(ctx, p.metrics, "reconstruct")
	take, err := reconstruct.Build(in.Take, edited)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	sctx, end = observe.StartStage(ctx, p.metrics, "intern")
	res.Responses, err = p.internExecutor(warnings).Apply(sctx, take, edited, res.Detection.Commands)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	sctx, end = observe.StartStage(ctx, p.metrics, "sfx")
	res.Effects, err = sfx.NewExecutor(p.media, warnings).Apply(sctx, take, edited, res.Detection.Commands)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	_, end = observe.StartStage(ctx, p.metrics, "silence")
	compressed := silence.Compress(take, p.cfg.Cleanup.Silence)
	end(nil)
	res.Gaps, res.SilenceRemoved = compressed.Gaps, compressed.Removed
	res.Take, res.Words = compressed.Audio, compressed.Words
	relocate(res, compressed.Inserted)

	// Episode.
	sctx, end = observe.StartStage(ctx, p.metrics, "template")
	tpl := in.Template
	if tpl == nil {
		tpl = &template.Template{Name: "take", Segments: []template.Segment{{Kind: template.Content}}}
	}
	var mopts []template.Option
	mopts = append(mopts, template.WithWarnings(warnings))
	if p.tts != nil {
		mopts = append(mopts, template.WithTTS(p.tts, p.voice()))
	}
	res.Mix, err = template.NewMixer(p.cfg.Audio, p.media, mopts...).Mix(sctx, tpl, res.Take)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	_, end = observe.StartStage(ctx, p.metrics, "transcript")
	res.Transcripts = transcripts(source, res)
	end(nil)

	res.Warnings = warnings.Warnings()
	log.InfoContext(ctx, "episode assembled",
		"commands", res.Detection.Total(),
		"responses", len(res.Responses),
		"effects", len(res.Effects),
		"silence_removed_s", res.SilenceRemoved,
		"duration_ms", res.Mix.Audio.DurationMs(),
		"warnings", len(res.Warnings),
		"elapsed", time.Since(start),
	)
	return res, nil
}

// words returns the run's transcript, transcribing the take when allowed.
func (p *Pipeline) words(ctx context.Context, in Input, warnings *degrade.Log, res *Result) ([]timeline.Word, error) {
	if len(in.Words) > 0 || in.MixOnly {
		return in.Words, nil
	}
	if !in.AllowTranscription || p.transcriber == nil {
		warnings.Warn(ctx, stage, "transcript_unavailable", ErrTranscriptUnavailable, "no transcript supplied, mixing without edits")
		return nil, nil
	}
	sctx, end := observe.StartStage(ctx, p.metrics, "transcribe")
	words, err := p.transcriber.Transcribe(sctx, in.Take)
	end(err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("pipeline: transcribe: %w", ctxErr)
		}
		warnings.Warn(ctx, stage, "transcript_unavailable", fmt.Errorf("%w: %w", ErrTranscriptUnavailable, err), "transcription failed, mixing without edits")
		return nil, nil
	}
	res.Transcribed = true
	return words, nil
}

func (p *Pipeline) internExecutor(warnings *degrade.Log) *intern.Executor {
	ic := p.cfg.Cleanup.Intern
	var responder *intern.Responder
	if p.tts != nil {
		var opts []intern.ResponderOption
		if p.llm != nil {
			opts = append(opts, intern.WithLLM(p.llm, ic.SystemPrompt, ic.MaxResponseTokens))
		}
		responder = intern.NewResponder(p.tts, p.voice(), opts...)
	}
	return intern.NewExecutor(ic, responder, p.media, warnings)
}

// relocate moves response and effect regions to their final positions.
// Later inserts and silence compression shift earlier ones; regions are
// matched by label.
func relocate(res *Result, regions []reconstruct.Region) {
	byLabel := make(map[string]reconstruct.Region, len(regions))
	for _, r := range regions {
		byLabel[r.Label] = r
	}
	for i := range res.Responses {
		r := &res.Responses[i]
		now, ok := byLabel[r.Region.Label]
		if !ok {
			continue
		}
		shift := now.Start - r.Region.Start
		r.SpeechStart += shift
		r.SpeechEnd += shift
		r.Region = now
	}
	for i := range res.Effects {
		if now, ok := byLabel[res.Effects[i].Region.Label]; ok {
			res.Effects[i].Region = now
		}
	}
}

func transcripts(source []timeline.Word, res *Result) []transcript.Transcript {
	var inserts []transcript.Insert
	for _, r := range res.Responses {
		if r.Text == "" {
			continue
		}
		inserts = append(inserts, transcript.Insert{
			Start:   r.SpeechStart,
			End:     r.SpeechEnd,
			Speaker: ResponseSpeaker,
			Text:    r.Text,
		})
	}
	var markers []transcript.Marker
	for _, pl := range res.Mix.Placements {
		if pl.Kind == template.Content {
			continue
		}
		markers = append(markers, transcript.Marker{Kind: string(pl.Kind), Label: pl.Label, StartMs: pl.StartMs, EndMs: pl.EndMs})
	}
	edited := transcript.BuildEdited(res.Words, inserts)
	return []transcript.Transcript{
		transcript.BuildOriginal(source),
		edited,
		transcript.BuildPublished(edited, res.Mix.ContentStartMs, markers),
	}
}
