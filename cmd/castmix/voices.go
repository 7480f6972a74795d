package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/MrWong99/castmix/internal/observe"
)

func newVoicesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices of the configured TTS providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			_, ps, err := newPipeline(cmd.Context(), cfg, observe.DefaultMetrics())
			if err != nil {
				return err
			}
			defer ps.Close()
			if ps.tts == nil {
				return errNoTTS
			}
			voices, err := ps.tts.ListVoices(cmd.Context())
			if err != nil {
				return err
			}
			sort.SliceStable(voices, func(i, j int) bool { return voices[i].Provider < voices[j].Provider })

			rows := make([][]string, 0, len(voices))
			for _, v := range voices {
				rows = append(rows, []string{v.Provider, v.ID, v.Name})
			}
			w := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(w, "No voices available")
				return nil
			}
			fmt.Fprint(w, renderTable(w, []string{"Provider", "ID", "Name"}, rows, nil))
			return nil
		},
	}
}
