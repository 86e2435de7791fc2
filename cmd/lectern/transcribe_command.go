package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lectern/internal/config"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Upload an audio file and print its transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve audio path: %w", err)
			}

			result, err := ctx.client().Transcribe(cmd.Context(), path)
			if err != nil {
				return describeClientError(err, ctx.serverAddr())
			}

			if jsonOut {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			if result.TranscriptID != nil {
				fmt.Fprintf(out, "Stored transcript %d\n\n", *result.TranscriptID)
			} else {
				fmt.Fprintln(out, "No speech detected; nothing was stored.")
			}
			if result.Transcription != "" {
				fmt.Fprintln(out, result.Transcription)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}
