// Package worker runs episode assembly as asynq background tasks.
//
// A task carries file paths, not audio: the worker and the submitter must
// share a file system (or the same mounted volume). Each task runs one
// pipeline and exports the result to a directory under the configured output
// root.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/internal/pipeline"
)

// TypeAssemble is the task type for one episode.
const TypeAssemble = "episode:assemble"

// Enqueue defaults.
const (
	DefaultMaxRetry = 3
	DefaultTimeout  = 30 * time.Minute
)

// ErrInvalidPayload is wrapped by payload validation failures.
var ErrInvalidPayload = errors.New("worker: invalid payload")

// AssemblePayload describes one episode:assemble task.
type AssemblePayload struct {
	pipeline.Files

	// Output is the export directory relative to the output root. Empty
	// means the task ID.
	Output string `json:"output,omitempty"`

	MixOnly            bool `json:"mix_only,omitempty"`
	Force              bool `json:"force,omitempty"`
	AllowTranscription bool `json:"allow_transcription,omitempty"`
}

// Validate checks the payload without touching the file system.
func (p AssemblePayload) Validate() error {
	var errs []error
	if p.Take == "" {
		errs = append(errs, errors.New("take is required"))
	}
	if p.Output != "" && !filepath.IsLocal(p.Output) {
		errs = append(errs, fmt.Errorf("output %q must be a relative path inside the output root", p.Output))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// NewAssembleTask validates p and encodes it as a task.
func NewAssembleTask(p AssemblePayload, opts ...asynq.Option) (*asynq.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("worker: marshal payload: %w", err)
	}
	return asynq.NewTask(TypeAssemble, data, opts...), nil
}

// RedisOptions converts the queue config into go-redis options.
func RedisOptions(cfg config.QueueConfig) *redis.Options {
	return &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Client submits episode tasks.
type Client struct {
	client *asynq.Client
}

// NewClient creates a client on an existing redis connection. The caller
// keeps ownership of rdb and closes it; the client itself holds nothing else.
func NewClient(rdb redis.UniversalClient) *Client {
	return &Client{client: asynq.NewClientFromRedisClient(rdb)}
}

// Enqueue submits p. Extra options override the retry and timeout defaults.
func (c *Client) Enqueue(ctx context.Context, p AssemblePayload, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	task, err := NewAssembleTask(p)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.MaxRetry(DefaultMaxRetry), asynq.Timeout(DefaultTimeout)}, opts...)
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("worker: enqueue %s: %w", TypeAssemble, err)
	}
	return info, nil
}
