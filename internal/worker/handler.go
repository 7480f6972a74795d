package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/MrWong99/castmix/internal/cleanup"
	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/internal/pipeline"
	"github.com/MrWong99/castmix/pkg/audio/mixer"
)

// Runner assembles one episode. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// Loader is implemented by runners that resolve task inputs themselves, so
// the take goes through their media resolver. *pipeline.Pipeline satisfies
// it. Other runners get inputs read from the file system only.
type Loader interface {
	Load(ctx context.Context, f pipeline.Files) (pipeline.Input, error)
}

// Handler processes episode:assemble tasks.
type Handler struct {
	root string

	mu     sync.RWMutex
	runner Runner
}

// NewHandler creates a handler that exports under root.
func NewHandler(runner Runner, root string) *Handler {
	return &Handler{runner: runner, root: root}
}

// SetRunner swaps the pipeline used by tasks that start afterwards. Running
// tasks keep the pipeline they started with.
func (h *Handler) SetRunner(r Runner) {
	h.mu.Lock()
	h.runner = r
	h.mu.Unlock()
}

func (h *Handler) current() Runner {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runner
}

// Mux returns a serve mux with the handler registered.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeAssemble, h)
	return mux
}

// ProcessTask implements [asynq.Handler]. Input errors and deterministic
// pipeline failures skip retries; everything else is retried.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p AssemblePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("worker: unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	taskID, _ := asynq.GetTaskID(ctx)
	log := slog.With("task_id", taskID, "take", p.Take)

	runner := h.current()
	var in pipeline.Input
	var err error
	if l, ok := runner.(Loader); ok {
		in, err = l.Load(ctx, p.Files)
	} else {
		in, err = p.Files.Load(ctx, nil)
	}
	if err != nil {
		return fmt.Errorf("worker: %w: %w", err, asynq.SkipRetry)
	}
	in.MixOnly, in.Force, in.AllowTranscription = p.MixOnly, p.Force, p.AllowTranscription

	log.InfoContext(ctx, "assembling episode")
	res, err := runner.Run(ctx, in)
	if err != nil {
		if permanent(err) {
			return fmt.Errorf("worker: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("worker: %w", err)
	}

	out := p.Output
	if out == "" {
		out = taskID
	}
	if out == "" {
		out = res.RunID
	}
	name := ""
	if in.Template != nil {
		name = in.Template.Name
	}
	manifest, err := pipeline.Export(filepath.Join(h.root, out), name, res)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	if w := t.ResultWriter(); w != nil {
		data, err := json.Marshal(manifest)
		if err == nil {
			_, err = w.Write(data)
		}
		if err != nil {
			log.WarnContext(ctx, "failed to store task result", "err", err)
		}
	}
	log.InfoContext(ctx, "episode task done", "run_id", res.RunID, "dir", filepath.Join(h.root, out), "warnings", len(res.Warnings))
	return nil
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	var (
		abort    *cleanup.FlubberAbortError
		tooLarge *mixer.TimelineTooLargeError
	)
	return errors.As(err, &abort) || errors.As(err, &tooLarge) || media.IsNotFound(err)
}
