package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrWong99/castmix/internal/worker"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		flags   runFlags
		output  string
		queue   string
		retries int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit an episode to the worker queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			payload, err := flags.payload(output)
			if err != nil {
				return err
			}

			rdb := redis.NewClient(worker.RedisOptions(cfg.Queue))
			defer rdb.Close()
			client := worker.NewClient(rdb)

			opts := []asynq.Option{asynq.MaxRetry(retries), asynq.Timeout(timeout)}
			if queue != "" {
				opts = append(opts, asynq.Queue(queue))
			}
			info, err := client.Enqueue(cmd.Context(), payload, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued task %s on queue %s\n", info.ID, info.Queue)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&output, "output", "", "export directory under the worker output root (default task ID)")
	cmd.Flags().StringVar(&queue, "queue", "", "asynq queue name")
	cmd.Flags().IntVar(&retries, "max-retry", worker.DefaultMaxRetry, "retries for transient failures")
	cmd.Flags().DurationVar(&timeout, "timeout", worker.DefaultTimeout, "task timeout")
	return cmd
}

// payload converts the run flags into a task payload. File paths are made
// absolute because the worker does not share the caller's directory. A take
// that is not a local file is passed on as a media name.
func (f *runFlags) payload(output string) (worker.AssemblePayload, error) {
	files := f.files
	for _, p := range []*string{&files.Take, &files.Words, &files.Template, &files.Overrides} {
		if *p == "" {
			continue
		}
		if p == &files.Take {
			if _, err := os.Stat(*p); err != nil {
				continue
			}
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return worker.AssemblePayload{}, err
		}
		*p = abs
	}
	pl := worker.AssemblePayload{
		Files:              files,
		Output:             output,
		MixOnly:            f.mixOnly,
		Force:              f.force,
		AllowTranscription: f.allowTranscription,
	}
	return pl, pl.Validate()
}
