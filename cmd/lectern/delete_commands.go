package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func parseTranscriptID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid transcript id %q", arg)
	}
	return id, nil
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transcript and its derived content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTranscriptID(args[0])
			if err != nil {
				return err
			}

			deleted, err := ctx.client().Delete(cmd.Context(), id)
			if err != nil {
				return describeClientError(err, ctx.serverAddr())
			}

			out := cmd.OutOrStdout()
			if deleted {
				fmt.Fprintf(out, "Transcript %d deleted\n", id)
			} else {
				fmt.Fprintf(out, "Transcript %d was not found\n", id)
			}
			return nil
		},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all transcripts and derived content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !yes {
				fmt.Fprint(out, "Delete all transcripts? [y/N] ")
				reader := bufio.NewReader(cmd.InOrStdin())
				answer, _ := reader.ReadString('\n')
				answer = strings.ToLower(strings.TrimSpace(answer))
				if answer != "y" && answer != "yes" {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			removed, err := ctx.client().DeleteAll(cmd.Context())
			if err != nil {
				return describeClientError(err, ctx.serverAddr())
			}
			fmt.Fprintf(out, "Deleted %d transcript(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
