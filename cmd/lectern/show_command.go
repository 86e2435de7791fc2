package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a transcript's full text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTranscriptID(args[0])
			if err != nil {
				return err
			}

			transcript, err := ctx.client().Transcript(cmd.Context(), id)
			if err != nil {
				return describeClientError(err, ctx.serverAddr())
			}

			if jsonOut {
				return writeJSON(cmd, transcript)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Transcript %d (%s, %s)\n\n", transcript.ID, transcript.Filename,
				transcript.CreatedAt.Local().Format("2006-01-02 15:04"))
			fmt.Fprintln(out, transcript.Text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}
