package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"lectern/internal/api"
)

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var deep bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and storage health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context(), deep)
			if err != nil {
				return describeClientError(err, ctx.serverAddr())
			}

			if jsonOut {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			renderStatus(out, ctx.serverAddr(), status, shouldColorize(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&deep, "deep", false, "Also probe the generative backend")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func renderStatus(out io.Writer, addr string, status *api.StatusResponse, colorize bool) {
	fmt.Fprintf(out, "Daemon:    %s at %s\n", stateLabel(status.Running, "running", "stopped", colorize), addr)
	fmt.Fprintf(out, "Storage:   %s (%s)\n", stateLabel(status.StorageHealthy, "healthy", "unavailable", colorize), status.DatabasePath)
	if status.StorageError != "" {
		fmt.Fprintf(out, "           %s\n", status.StorageError)
	}
	fmt.Fprintf(out, "Whisper:   %s\n", status.WhisperModel)
	if status.LLMHealthy != nil {
		fmt.Fprintf(out, "LLM:       %s (%s)\n", stateLabel(*status.LLMHealthy, "reachable", "unreachable", colorize), status.LLMModel)
		if status.LLMError != "" {
			fmt.Fprintf(out, "           %s\n", status.LLMError)
		}
	} else {
		fmt.Fprintf(out, "LLM:       %s\n", status.LLMModel)
	}
	fmt.Fprintf(out, "Lock file: %s\n", status.LockFilePath)
}

func stateLabel(ok bool, okLabel, badLabel string, colorize bool) string {
	if ok {
		if colorize {
			return ansiGreen + okLabel + ansiReset
		}
		return okLabel
	}
	if colorize {
		return ansiRed + badLabel + ansiReset
	}
	return badLabel
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
