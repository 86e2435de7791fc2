package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/api"
)

const listTextPreviewLength = 60

func newTranscriptsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: "List stored transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := ctx.client().Transcripts(cmd.Context())
			if err != nil {
				return describeClientError(err, ctx.serverAddr())
			}

			if jsonOut {
				return writeJSON(cmd, summaries)
			}

			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No transcripts stored.")
				return nil
			}
			fmt.Fprintln(out, renderTranscriptsTable(summaries))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func renderTranscriptsTable(summaries []api.TranscriptSummary) string {
	rows := make([][]string, 0, len(summaries))
	for _, summary := range summaries {
		rows = append(rows, []string{
			strconv.FormatInt(summary.ID, 10),
			summary.CreatedAt.Local().Format("2006-01-02 15:04"),
			summary.Filename,
			yesNo(summary.HasDerivedContent),
			previewText(summary.Text, listTextPreviewLength),
		})
	}
	return renderTable([]string{"ID", "Created", "Filename", "Study content", "Text"}, rows, 1)
}

// previewText collapses a transcript to a single trimmed line of at most max
// characters for table display.
func previewText(text string, max int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if len(collapsed) <= max {
		return collapsed
	}
	return collapsed[:max-1] + "…"
}
