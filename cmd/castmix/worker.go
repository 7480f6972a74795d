package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/castmix/internal/config"
	"github.com/MrWong99/castmix/internal/health"
	"github.com/MrWong99/castmix/internal/observe"
	"github.com/MrWong99/castmix/internal/pipeline"
	"github.com/MrWong99/castmix/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued episode tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			shutdown, err := observe.InitProvider(runCtx, cfg.Telemetry)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					slog.Warn("telemetry shutdown", "err", err)
				}
			}()
			m := observe.DefaultMetrics()

			p, ps, err := newPipeline(runCtx, cfg, m)
			if err != nil {
				return err
			}
			defer ps.Close()

			rdb := redis.NewClient(worker.RedisOptions(cfg.Queue))
			defer rdb.Close()

			h := worker.NewHandler(p, cfg.Queue.OutputRoot)
			if ctx.configPath != "" {
				w, err := config.NewWatcher(ctx.configPath, config.WithOnChange(reloader(h, ps, m)))
				if err != nil {
					return err
				}
				defer w.Stop()
			}

			checks := health.New(append([]health.Checker{health.Redis(rdb)}, ps.checkers()...)...)
			g, gctx := errgroup.WithContext(runCtx)
			metricsAddr := cfg.Telemetry.MetricsAddr
			g.Go(func() error {
				return health.Serve(gctx, cfg.Queue.HealthAddr, checks, m, metricsAddr == cfg.Queue.HealthAddr)
			})
			if metricsAddr != "" && metricsAddr != cfg.Queue.HealthAddr {
				g.Go(func() error {
					return health.Serve(gctx, metricsAddr, health.New(), m, true)
				})
			}
			g.Go(func() error {
				return worker.Serve(gctx, rdb, cfg.Queue, h)
			})
			return g.Wait()
		},
	}
}

// reloader applies config changes that do not need a restart: the next task
// runs with the new cleanup and audio settings and the existing providers.
func reloader(h *worker.Handler, ps *providers, m *observe.Metrics) func(old, new *config.Config) {
	var mu sync.Mutex
	return func(old, new *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			if lvl, err := parseLevel(string(d.NewLogLevel)); err == nil {
				logLevel.Set(lvl)
			}
		}
		if d.RestartRequired() || d.MediaChanged {
			slog.Warn("config change needs a worker restart to take full effect",
				"providers", d.ProvidersChanged,
				"queue", d.QueueChanged,
				"telemetry", d.TelemetryChanged,
				"media", d.MediaChanged,
			)
		}
		if d.CleanupChanged || d.AudioChanged {
			h.SetRunner(pipeline.New(new, ps.options(m)...))
			slog.Info("pipeline reloaded", "cleanup", d.CleanupSections, "audio", d.AudioChanged)
		}
	}
}
