package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/castmix/internal/command"
	"github.com/MrWong99/castmix/internal/pipeline"
	"github.com/MrWong99/castmix/pkg/timeline"
)

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var (
		wordsPath     string
		overridesPath string
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "List the editing commands spoken in a word timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			words, err := pipeline.LoadWords(wordsPath)
			if err != nil {
				return err
			}
			var overrides []command.Override
			if overridesPath != "" {
				if overrides, err = pipeline.LoadOverrides(overridesPath); err != nil {
					return err
				}
			}
			det := command.New(cfg.Cleanup).Detect(words, command.Options{Overrides: overrides})

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(det)
			}
			if det.Total() == 0 {
				fmt.Fprintln(w, "No commands found")
				return nil
			}
			fmt.Fprint(w, renderTable(w,
				[]string{"Kind", "#", "Time (s)", "Phrase", "Detail"},
				detectionRows(words, det),
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			var summary []string
			for _, k := range command.Kinds {
				summary = append(summary, fmt.Sprintf("%s=%d", k, det.Counts[k]))
			}
			fmt.Fprintln(w, strings.Join(summary, " "))
			if det.UnusedOverrides > 0 {
				fmt.Fprintf(w, "%d override(s) matched no command\n", det.UnusedOverrides)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&wordsPath, "words", "", "word timeline JSON")
	cmd.Flags().StringVar(&overridesPath, "overrides", "", "approved intern responses (YAML or JSON)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the detection as JSON")
	_ = cmd.MarkFlagRequired("words")
	return cmd
}

func detectionRows(words []timeline.Word, det command.Detection) [][]string {
	rows := make([][]string, 0, det.Total())
	for _, c := range det.Commands {
		tr := c.Trigger()
		span := ""
		if tr.Start < len(words) && tr.End > 0 {
			span = formatSpan(words[tr.Start].Start, words[min(tr.End, len(words))-1].End)
		}
		phrase := c.Phrase
		if c.Fuzzy {
			phrase += " (fuzzy)"
		}
		rows = append(rows, []string{string(c.Kind), strconv.Itoa(c.Ordinal), span, phrase, detail(c)})
	}
	return rows
}

func detail(c command.Command) string {
	switch c.Kind {
	case command.Intern:
		s := strconv.Quote(c.Instruction)
		if c.Override != nil {
			s += " -> override"
		}
		return s
	case command.SFX:
		return c.Clip
	case command.Flubber:
		return fmt.Sprintf("lookback from word %d", c.Context.Start)
	}
	return ""
}
