package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MrWong99/castmix/internal/observe"
	"github.com/MrWong99/castmix/internal/pipeline"
)

type runFlags struct {
	files              pipeline.Files
	mixOnly            bool
	force              bool
	allowTranscription bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.files.Take, "take", "", "raw recording: WAV/MP3 path or media name")
	fl.StringVar(&f.files.Words, "words", "", "word timeline JSON")
	fl.StringVar(&f.files.Template, "template", "", "show template (YAML, TOML or JSON)")
	fl.StringVar(&f.files.Overrides, "overrides", "", "approved intern responses (YAML or JSON)")
	fl.BoolVar(&f.mixOnly, "mix-only", false, "skip transcript-driven edits")
	fl.BoolVar(&f.force, "force", false, "run edits even with --mix-only")
	fl.BoolVar(&f.allowTranscription, "allow-transcription", false, "transcribe the take when no words are given")
	_ = cmd.MarkFlagRequired("take")
}

func (f *runFlags) input(ctx context.Context, p *pipeline.Pipeline) (pipeline.Input, error) {
	in, err := p.Load(ctx, f.files)
	if err != nil {
		return in, err
	}
	in.MixOnly, in.Force, in.AllowTranscription = f.mixOnly, f.force, f.allowTranscription
	return in, nil
}

func newAssembleCommand(ctx *commandContext) *cobra.Command {
	var (
		flags runFlags
		out   string
	)
	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Edit a take and mix it into an episode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			m := observe.DefaultMetrics()
			p, ps, err := newPipeline(runCtx, cfg, m)
			if err != nil {
				return err
			}
			defer ps.Close()

			in, err := flags.input(runCtx, p)
			if err != nil {
				return err
			}

			res, err := p.Run(runCtx, in)
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(cfg.Queue.OutputRoot, res.RunID)
			}
			name := ""
			if in.Template != nil {
				name = in.Template.Name
			}
			manifest, err := pipeline.Export(out, name, res)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Episode %s written to %s (%s)\n", res.RunID, out, formatMs(manifest.DurationMs))
			for _, warn := range res.Warnings {
				fmt.Fprintf(w, "  warning: %s: %s\n", warn.Stage, warn.Message)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory (default <output_root>/<run id>)")
	return cmd
}
