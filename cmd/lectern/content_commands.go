package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "generate <id>",
		Short: "Derive study content from a stored transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTranscriptID(args[0])
			if err != nil {
				return err
			}

			result, err := ctx.client().GenerateContent(cmd.Context(), id, kind)
			if err != nil {
				return describeClientError(err, ctx.serverAddr())
			}

			if jsonOut {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %s for transcript %d\n\n", result.Kind, result.TranscriptID)
			return printIndentedJSON(out, result.Content)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Document kind (mini_lecture or quiz)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newContentCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var latest bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "content <id>",
		Short: "Show stored derived content for a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTranscriptID(args[0])
			if err != nil {
				return err
			}

			if latest {
				doc, err := ctx.client().LatestContent(cmd.Context(), id, kind)
				if err != nil {
					return describeClientError(err, ctx.serverAddr())
				}
				if jsonOut {
					return writeJSON(cmd, doc)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "[%d] %s (%s)\n", doc.ID, doc.Kind,
					doc.CreatedAt.Local().Format("2006-01-02 15:04"))
				return printIndentedJSON(out, doc.Content)
			}

			docs, err := ctx.client().Content(cmd.Context(), id, kind)
			if err != nil {
				return describeClientError(err, ctx.serverAddr())
			}

			if jsonOut {
				return writeJSON(cmd, docs)
			}

			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintf(out, "No derived content stored for transcript %d.\n", id)
				return nil
			}
			for i, doc := range docs {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "[%d] %s (%s)\n", doc.ID, doc.Kind,
					doc.CreatedAt.Local().Format("2006-01-02 15:04"))
				if err := printIndentedJSON(out, doc.Content); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only show documents of this kind (mini_lecture or quiz)")
	cmd.Flags().BoolVar(&latest, "latest", false, "Only show the most recent document")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}
