package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/castmix/internal/template"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [template...]",
		Short: "Check the configuration and show templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if ctx.configPath != "" {
				fmt.Fprintf(w, "%s: ok\n", ctx.configPath)
			}
			var errs []error
			for _, path := range args {
				t, err := template.Load(path)
				if err != nil {
					fmt.Fprintf(w, "%s: %v\n", path, err)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(w, "%s: ok (%q, %d segments, %d music rules)\n", path, t.Name, len(t.Segments), len(t.BackgroundMusic))
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d invalid template(s): %w", len(errs), errors.Join(errs...))
			}
			return nil
		},
	}
}
