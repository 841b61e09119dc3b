package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/book-expert/narrator/internal/app"
	"github.com/book-expert/narrator/internal/config"
	"github.com/book-expert/narrator/internal/history"
	"github.com/book-expert/narrator/internal/scratch"
	"github.com/book-expert/narrator/internal/tts"
)

const (
	flagLimit  = "limit"
	flagTitles = "titles"

	healthTimeout  = 10 * time.Second
	historyDateFmt = "2006-01-02 15:04"
)

const (
	msgServiceHealthy    = "Speech service is healthy"
	msgGoogleConfigured  = "Google Text-to-Speech client created"
	msgFFmpegAvailable   = "ffmpeg is available: %s\n"
	errFmtFFmpegMissing  = "ffmpeg check failed: %w"
	errFmtServiceHealthy = "speech service is not healthy: %w"
)

func newHistoryCommand(root *rootOptions) *cobra.Command {
	var (
		limit  int
		titles bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent conversions or the title library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(root, func(application *app.App) error {
				store, err := application.History(cmd.Context())
				if err != nil {
					return err
				}

				if titles {
					return printTitles(cmd.Context(), cmd.OutOrStdout(), store)
				}

				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}

				return printRuns(cmd.OutOrStdout(), runs)
			})
		},
	}

	cmd.Flags().IntVar(&limit, flagLimit, 20, "Number of runs to show")
	cmd.Flags().BoolVar(&titles, flagTitles, false, "Show the title library instead of runs")

	return cmd
}

func printRuns(out io.Writer, runs []history.Run) error {
	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(writer, "STARTED\tSTATUS\tVOICE\tSEGMENTS\tSKIPPED\tTOOK\tOUTPUT")

	for _, run := range runs {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			run.StartedAt.Local().Format(historyDateFmt),
			run.Status,
			run.Voice,
			run.Segments, run.Fragments,
			run.Skipped,
			scratch.FormatDuration(run.Duration),
			run.Output,
		)
	}

	return writer.Flush()
}

func printTitles(ctx context.Context, out io.Writer, store *history.Store) error {
	titles, err := store.Titles(ctx)
	if err != nil {
		return err
	}

	for _, title := range titles {
		fmt.Fprintln(out, title)
	}

	return nil
}

func newHealthCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the speech backend and ffmpeg",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(root, func(application *app.App) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
				defer cancel()

				return checkHealth(ctx, cmd.OutOrStdout(), application)
			})
		},
	}
}

func checkHealth(ctx context.Context, out io.Writer, application *app.App) error {
	cfg := application.Config

	if cfg.Synthesis.Backend == config.BackendHTTP {
		client := tts.NewHTTPClient(cfg.HTTPTTS.URL, healthTimeout)

		err := client.HealthCheck(ctx)
		if err != nil {
			application.Logger.Error("Health check failed: %v", err)

			return fmt.Errorf(errFmtServiceHealthy, err)
		}

		fmt.Fprintln(out, msgServiceHealthy)
	} else {
		_, err := application.Synthesizer(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, msgGoogleConfigured)
	}

	ffmpeg, err := application.FFmpeg()
	if err != nil {
		return err
	}

	version, err := application.Runner().Run(ctx, ffmpeg.Name, "-version")
	if err != nil {
		return fmt.Errorf(errFmtFFmpegMissing, err)
	}

	fmt.Fprintf(out, msgFFmpegAvailable, firstLine(string(version)))

	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")

	return line
}
