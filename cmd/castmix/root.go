package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/castmix/internal/config"
)

// commandContext carries state shared by all subcommands.
type commandContext struct {
	configPath string
	logLevel   string
	logFormat  string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

// ensureConfig loads the config file once. Without --config the defaults are
// used.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(c.configPath)
		if path == "" {
			c.config = config.Default()
			return
		}
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("config file %q not found", path)
			}
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "castmix",
		Short:         "Assemble podcast episodes from takes, transcripts and templates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := ctx.logLevel
			if level == "" {
				level = string(cfg.LogLevel)
			}
			logger, err := newLogger(cmd.ErrOrStderr(), level, ctx.logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&ctx.configPath, "config", "c", "", "configuration file (YAML)")
	flags.StringVar(&ctx.logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	flags.StringVar(&ctx.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		newAssembleCommand(ctx),
		newDetectCommand(ctx),
		newValidateCommand(ctx),
		newWorkerCommand(ctx),
		newEnqueueCommand(ctx),
		newVoicesCommand(ctx),
		newMediaCommand(ctx),
	)
	return root
}

// logLevel is shared by the process logger so a config reload can change it.
var logLevel = new(slog.LevelVar)

// parseLevel maps a config log level to slog.
func parseLevel(level string) (slog.Level, error) {
	switch config.LogLevel(level) {
	case config.LogDebug:
		return slog.LevelDebug, nil
	case config.LogInfo:
		return slog.LevelInfo, nil
	case config.LogWarn:
		return slog.LevelWarn, nil
	case config.LogError:
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q", level)
}

// newLogger builds the process logger.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	logLevel.Set(lvl)
	opts := &slog.HandlerOptions{Level: logLevel}
	switch format {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
