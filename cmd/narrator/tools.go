package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/book-expert/narrator/internal/app"
	"github.com/book-expert/narrator/internal/media"
	"github.com/book-expert/narrator/internal/subtitles"
)

const (
	flagTo        = "to"
	flagFrom      = "from"
	flagAudio     = "audio"
	flagVideo     = "video"
	flagSubtitles = "subtitles"
	srtExtension  = ".srt"
)

var (
	errOutputRequired     = errors.New("--output is required")
	errSubtitlesNeedAudio = errors.New("subtitles from story text need --audio for their timing")
	errSubtitlesFromBoth  = errors.New("cannot use --subtitles together with --text or --file")
)

func newTranslateCommand(root *rootOptions) *cobra.Command {
	var (
		story        storyFlags
		target, from string
	)

	cmd := &cobra.Command{
		Use:     "translate",
		Short:   "Translate story text with Cloud Translation",
		Example: `narrator translate --file story.txt --to fr`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := story.read()
			if err != nil {
				return err
			}

			return withApp(root, func(application *app.App) error {
				translator, err := application.Translator(cmd.Context())
				if err != nil {
					return err
				}

				translated, err := translator.Translate(cmd.Context(), text, target, from)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), translated)

				return nil
			})
		},
	}

	story.register(cmd)
	cmd.Flags().StringVar(&target, flagTo, "", "Target language code")
	cmd.Flags().StringVar(&from, flagFrom, "", "Source language code (detected when empty)")
	_ = cmd.MarkFlagRequired(flagTo)

	return cmd
}

func newDetectCommand(root *rootOptions) *cobra.Command {
	var story storyFlags

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect the language of story text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := story.read()
			if err != nil {
				return err
			}

			return withApp(root, func(application *app.App) error {
				translator, err := application.Translator(cmd.Context())
				if err != nil {
					return err
				}

				language, err := translator.Detect(cmd.Context(), text)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), language)

				return nil
			})
		},
	}

	story.register(cmd)

	return cmd
}

func newSubtitlesCommand(root *rootOptions) *cobra.Command {
	var (
		story         storyFlags
		audio, output string
	)

	cmd := &cobra.Command{
		Use:     "subtitles",
		Short:   "Write an SRT file timed evenly over the audio",
		Example: `narrator subtitles --file story.txt --audio final_audio.mp3 --output story.srt`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := story.read()
			if err != nil {
				return err
			}

			if output == "" {
				return errOutputRequired
			}

			return withApp(root, func(application *app.App) error {
				prober, err := application.Prober()
				if err != nil {
					return err
				}

				duration, err := prober.Duration(cmd.Context(), audio)
				if err != nil {
					return err
				}

				cues, err := subtitles.Build(text, duration)
				if err != nil {
					return err
				}

				err = subtitles.WriteFile(output, cues)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d cues to %s\n", len(cues), output)

				return nil
			})
		},
	}

	story.register(cmd)
	cmd.Flags().StringVar(&audio, flagAudio, "", "Narrated audio file")
	cmd.Flags().StringVarP(&output, flagOutput, "o", "", "SRT file to write")
	_ = cmd.MarkFlagRequired(flagAudio)

	return cmd
}

func newEffectsCommand(root *rootOptions) *cobra.Command {
	var audio, output string

	cmd := &cobra.Command{
		Use:     "effects",
		Short:   "Apply the configured audio effects to a narration",
		Example: `narrator effects --audio final_audio.mp3 --output story.mp3`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				return errOutputRequired
			}

			return withApp(root, func(application *app.App) error {
				processor, err := application.Processor()
				if err != nil {
					return err
				}

				err = processor.Apply(cmd.Context(), audio, output, application.Config.Media.Effects)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Audio written to %s\n", output)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&audio, flagAudio, "", "Narrated audio file")
	cmd.Flags().StringVarP(&output, flagOutput, "o", "", "Audio file to write")
	_ = cmd.MarkFlagRequired(flagAudio)

	return cmd
}

// videoOptions are the flags of the video command.
type videoOptions struct {
	story     storyFlags
	video     media.Video
	subtitles string
}

func newVideoCommand(root *rootOptions) *cobra.Command {
	opts := &videoOptions{}

	cmd := &cobra.Command{
		Use:   "video",
		Short: "Loop a background video under the narration with subtitles",
		Example: `narrator video --video beach.mp4 --audio final_audio.mp3 --file story.txt --output story.mp4
narrator video --video talk.mp4 --subtitles talk.srt --output talk_subtitled.mp4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(root, func(application *app.App) error {
				return runVideo(cmd.Context(), cmd.OutOrStdout(), application, opts)
			})
		},
	}

	opts.story.register(cmd)
	cmd.Flags().StringVar(&opts.video.Background, flagVideo, "", "Background video file")
	cmd.Flags().StringVar(&opts.video.Audio, flagAudio, "", "Narrated audio file (loops the video until it ends)")
	cmd.Flags().StringVar(&opts.subtitles, flagSubtitles, "", "Existing SRT file to burn in")
	cmd.Flags().StringVarP(&opts.video.Output, flagOutput, "o", "", "Video file to write")
	_ = cmd.MarkFlagRequired(flagVideo)

	return cmd
}

// runVideo renders opts.video. Story text, when given, is turned into an
// SRT file next to the output, timed over the narration.
func runVideo(ctx context.Context, out io.Writer, application *app.App, opts *videoOptions) error {
	video := opts.video
	video.Subtitles = opts.subtitles

	if video.Output == "" {
		return errOutputRequired
	}

	if opts.story.given() {
		if opts.subtitles != "" {
			return errSubtitlesFromBoth
		}

		if video.Audio == "" {
			return errSubtitlesNeedAudio
		}

		path, err := writeStorySubtitles(ctx, out, application, opts.story, video)
		if err != nil {
			return err
		}

		video.Subtitles = path
	}

	renderer, err := application.Renderer()
	if err != nil {
		return err
	}

	err = renderer.Render(ctx, video)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Video written to %s\n", video.Output)

	return nil
}

func writeStorySubtitles(
	ctx context.Context,
	out io.Writer,
	application *app.App,
	story storyFlags,
	video media.Video,
) (string, error) {
	text, err := story.read()
	if err != nil {
		return "", err
	}

	prober, err := application.Prober()
	if err != nil {
		return "", err
	}

	duration, err := prober.Duration(ctx, video.Audio)
	if err != nil {
		return "", err
	}

	cues, err := subtitles.Build(text, duration)
	if err != nil {
		return "", err
	}

	path := subtitlesPathFor(video.Output)

	err = subtitles.WriteFile(path, cues)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(out, "Wrote %d cues to %s\n", len(cues), path)

	return path, nil
}

// subtitlesPathFor swaps the extension of a video path for .srt.
func subtitlesPathFor(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + srtExtension
}
