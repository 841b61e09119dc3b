package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/book-expert/narrator/internal/app"
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/handoff"
	"github.com/book-expert/narrator/internal/pipeline"
	"github.com/book-expert/narrator/internal/scratch"
)

const (
	flagHandoff     = "handoff"
	flagVoice       = "voice"
	flagLanguage    = "language"
	flagGender      = "gender"
	flagRate        = "rate"
	flagPitch       = "pitch"
	flagEncoding    = "encoding"
	flagTitle       = "title"
	flagTranslateTo = "translate-to"
)

const (
	logFmtConverted     = "Audio written to %s (%s, %s)\n"
	logFmtWarning       = "Warning: %s\n"
	logFmtTitleReused   = "Title %q was used before"
	logFmtTranslated    = "Translated story to %s before conversion"
	errFmtCopyArtifact  = "failed to copy audio to %s: %w"
	errFmtHandoffDirSet = "hand-off directory %s: %w"
)

type convertOptions struct {
	story       storyFlags
	handoffDir  string
	voice       string
	language    string
	gender      string
	encoding    string
	rate        *float64
	pitch       *float64
	output      string
	title       string
	translateTo string
}

func newConvertCommand(root *rootOptions) *cobra.Command {
	opts := &convertOptions{}

	var rate, pitch float64

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a story into one audio file",
		Example: `narrator convert --file story.txt --voice en-US-Wavenet-D --language en-US --gender MALE
narrator convert --handoff ./handoff --output story.mp3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed(flagRate) {
				opts.rate = &rate
			}

			if cmd.Flags().Changed(flagPitch) {
				opts.pitch = &pitch
			}

			return withApp(root, func(application *app.App) error {
				return runConvert(cmd.Context(), cmd.OutOrStdout(), application, opts)
			})
		},
	}

	opts.story.register(cmd)
	cmd.Flags().StringVar(&opts.handoffDir, flagHandoff, "", "Read the request from a hand-off directory")
	cmd.Flags().StringVar(&opts.voice, flagVoice, "", "Voice name, for example en-US-Wavenet-D")
	cmd.Flags().StringVar(&opts.language, flagLanguage, "", "Language code, for example en-US")
	cmd.Flags().StringVar(&opts.gender, flagGender, "", "Voice gender: MALE, FEMALE or NEUTRAL")
	cmd.Flags().StringVar(&opts.encoding, flagEncoding, "", "Audio encoding: mp3, wav or ogg")
	cmd.Flags().Float64Var(&rate, flagRate, 1.0, "Speaking rate, 0.25 to 4.0")
	cmd.Flags().Float64Var(&pitch, flagPitch, 0, "Pitch in semitones, -20 to 20")
	cmd.Flags().StringVarP(&opts.output, flagOutput, "o", "", "Copy the final audio to this path")
	cmd.Flags().StringVar(&opts.title, flagTitle, "", "Story title, kept in the title library")
	cmd.Flags().StringVar(&opts.translateTo, flagTranslateTo, "", "Translate the story to this language first")

	return cmd
}

func runConvert(ctx context.Context, out io.Writer, application *app.App, opts *convertOptions) error {
	req, err := resolveRequest(application, opts)
	if err != nil {
		return err
	}

	if opts.translateTo != "" {
		translator, translatorErr := application.Translator(ctx)
		if translatorErr != nil {
			return translatorErr
		}

		translated, translateErr := translator.Translate(ctx, req.Text, opts.translateTo, "")
		if translateErr != nil {
			return translateErr
		}

		req.Text = translated
		application.Logger.Info(logFmtTranslated, opts.translateTo)
	}

	converter, err := application.Converter(ctx)
	if err != nil {
		return err
	}

	result, convertErr := converter.Convert(ctx, req)
	status := pipeline.Describe(convertErr)

	for _, warning := range result.Warnings {
		fmt.Fprintf(out, logFmtWarning, warning)
	}

	fmt.Fprintln(out, status.Message)

	if status.Fatal() {
		return convertErr
	}

	output := result.Output
	if opts.output != "" {
		copyErr := copyArtifact(result.Output, opts.output)
		if copyErr != nil {
			return copyErr
		}

		output = opts.output
	}

	fmt.Fprintf(out, logFmtConverted, output, artifactSize(output), scratch.FormatDuration(result.Duration))

	keepJournal(ctx, application, opts.title)

	return nil
}

// resolveRequest layers the request: configured defaults, then the hand-off
// directory, then flags.
func resolveRequest(application *app.App, opts *convertOptions) (pipeline.Request, error) {
	cfg := application.Config

	encoding, _ := core.ParseEncoding(cfg.Synthesis.Encoding)
	req := pipeline.Request{
		Voice:        application.DefaultVoice(),
		SpeakingRate: cfg.Synthesis.SpeakingRate,
		Pitch:        cfg.Synthesis.Pitch,
		Encoding:     encoding,
	}

	handoffDir := opts.handoffDir
	if handoffDir == "" && !opts.story.given() {
		handoffDir = cfg.Paths.HandoffDir
	}

	if handoffDir != "" {
		settings, err := handoff.Read(handoffDir)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf(errFmtHandoffDirSet, handoffDir, err)
		}

		req.Text = settings.Text
		req.Voice = settings.Voice
		req.SpeakingRate = settings.SpeakingRate
		req.Pitch = settings.Pitch
	}

	if opts.story.given() {
		story, err := opts.story.read()
		if err != nil {
			return pipeline.Request{}, err
		}

		req.Text = story
	}

	if req.Text == "" {
		return pipeline.Request{}, errNoStory
	}

	applyVoiceFlags(&req, opts)

	return req, nil
}

func applyVoiceFlags(req *pipeline.Request, opts *convertOptions) {
	if opts.voice != "" {
		req.Voice.Name = opts.voice
	}

	if opts.language != "" {
		req.Voice.LanguageCode = opts.language
	}

	if opts.gender != "" {
		req.Voice.Gender = core.Gender(opts.gender)
	}

	if opts.encoding != "" {
		req.Encoding = core.Encoding(opts.encoding)
	}

	if opts.rate != nil {
		req.SpeakingRate = *opts.rate
	}

	if opts.pitch != nil {
		req.Pitch = *opts.pitch
	}
}

// keepJournal adds the title to the library and prunes old runs. Journal
// problems never fail a conversion.
func keepJournal(ctx context.Context, application *app.App, title string) {
	store, err := application.History(ctx)
	if err != nil {
		if !errors.Is(err, app.ErrHistoryDisabled) {
			application.Logger.Warn("History unavailable: %v", err)
		}

		return
	}

	if title != "" {
		added, addErr := store.AddTitle(ctx, title)
		if addErr != nil {
			application.Logger.Warn("Could not store title: %v", addErr)
		} else if !added {
			application.Logger.Warn(logFmtTitleReused, title)
		}
	}

	_, pruneErr := store.Prune(ctx, application.Config.History.KeepRuns)
	if pruneErr != nil {
		application.Logger.Warn("Could not prune history: %v", pruneErr)
	}
}

func copyArtifact(source, destination string) error {
	err := scratch.CopyFile(source, destination)
	if err != nil {
		return fmt.Errorf(errFmtCopyArtifact, destination, err)
	}

	return nil
}

func artifactSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "size unknown"
	}

	return scratch.FormatFileSize(info.Size())
}
