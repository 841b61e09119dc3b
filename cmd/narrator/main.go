// Command narrator converts story text into one narrated audio file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/book-expert/narrator/internal/app"
)

// Flag names.
const (
	flagConfig = "config"
	flagText   = "text"
	flagFile   = "file"
	flagOutput = "output"
)

// Flag descriptions.
const (
	flagConfigDesc = "Path to project.toml (defaults to searching up directory tree)"
	flagTextDesc   = "Story text"
	flagFileDesc   = "File containing the story text"
)

// Error messages.
const (
	errEitherTextOrFile  = "either --text or --file must be provided"
	errCannotSpecifyBoth = "cannot specify both --text and --file"
	errFmtReadStory      = "failed to read story from %s: %w"
)

const logFileName = "narrator.log"

var (
	errNoStory   = errors.New(errEitherTextOrFile)
	errBothStory = errors.New(errCannotSpecifyBoth)
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	root.SetArgs(args)

	return root.ExecuteContext(ctx)
}

// loadDotEnv reads .env from the working directory when there is one.
func loadDotEnv() {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "narrator",
		Short:         "Turn story text into narrated audio",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, flagConfig, "", flagConfigDesc)

	cmd.AddCommand(
		newConvertCommand(opts),
		newTranslateCommand(opts),
		newDetectCommand(opts),
		newSubtitlesCommand(opts),
		newEffectsCommand(opts),
		newVideoCommand(opts),
		newHistoryCommand(opts),
		newHealthCommand(opts),
	)

	return cmd
}

// withApp bootstraps the application for one command and closes it after.
func withApp(opts *rootOptions, fn func(*app.App) error) error {
	application, err := app.Bootstrap(opts.configPath, logFileName)
	if err != nil {
		return err
	}

	runErr := fn(application)
	closeErr := application.Close()

	return errors.Join(runErr, closeErr)
}

// storyFlags select where story text comes from.
type storyFlags struct {
	text string
	file string
}

func (s *storyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.text, flagText, "", flagTextDesc)
	cmd.Flags().StringVar(&s.file, flagFile, "", flagFileDesc)
}

func (s *storyFlags) given() bool {
	return s.text != "" || s.file != ""
}

// read returns the story from --text or --file; exactly one must be set.
func (s *storyFlags) read() (string, error) {
	switch {
	case s.text != "" && s.file != "":
		return "", errBothStory
	case s.text != "":
		return s.text, nil
	case s.file != "":
		data, err := os.ReadFile(s.file)
		if err != nil {
			return "", fmt.Errorf(errFmtReadStory, s.file, err)
		}

		return strings.TrimSpace(string(data)), nil
	default:
		return "", errNoStory
	}
}
