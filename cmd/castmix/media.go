package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MrWong99/castmix/internal/media"
	"github.com/MrWong99/castmix/internal/observe"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Manage show assets",
	}
	cmd.AddCommand(newMediaImportCommand(ctx), newMediaCheckCommand(ctx))
	return cmd
}

func newMediaImportCommand(ctx *commandContext) *cobra.Command {
	var aliases []string
	cmd := &cobra.Command{
		Use:   "import NAME FILE",
		Short: "Store an audio file in the media catalog",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Media.CatalogDSN == "" {
				return errors.New("media.catalog_dsn is not configured")
			}
			name, path := args[0], args[1]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			catalog, err := media.NewCatalogResolver(cmd.Context(), cfg.Media.CatalogDSN)
			if err != nil {
				return err
			}
			defer catalog.Close()
			if err := catalog.Put(cmd.Context(), name, media.EncodingOf(path), data, aliases...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %q (%s)\n", name, humanize.IBytes(uint64(len(data))))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&aliases, "alias", nil, "alternative names for the asset")
	return cmd
}

func newMediaCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check NAME...",
		Short: "Resolve assets the way an episode run would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			_, ps, err := newPipeline(cmd.Context(), cfg, observe.DefaultMetrics())
			if err != nil {
				return err
			}
			defer ps.Close()

			w := cmd.OutOrStdout()
			rows := make([][]string, 0, len(args))
			missing := 0
			for _, name := range args {
				seg, err := ps.media.Resolve(cmd.Context(), name)
				switch {
				case media.IsNotFound(err):
					missing++
					rows = append(rows, []string{name, "missing", "", ""})
				case err != nil:
					return err
				default:
					rows = append(rows, []string{name, "ok", formatMs(seg.DurationMs()), seg.Format().String()})
				}
			}
			fmt.Fprint(w, renderTable(w, []string{"Asset", "Status", "Duration", "Format"}, rows, nil))
			if missing > 0 {
				return fmt.Errorf("%d asset(s) not found", missing)
			}
			return nil
		},
	}
}
