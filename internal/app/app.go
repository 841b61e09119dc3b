// Package app wires configuration, logging and the pipeline components for
// the narrator binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/logger"

	"github.com/book-expert/narrator/internal/config"
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/history"
	"github.com/book-expert/narrator/internal/media"
	"github.com/book-expert/narrator/internal/pipeline"
	"github.com/book-expert/narrator/internal/scratch"
	"github.com/book-expert/narrator/internal/translate"
	"github.com/book-expert/narrator/internal/tts"
)

const bootstrapLogFile = "narrator-bootstrap.log"

const (
	logFmtConfigLoaded = "Configuration loaded (backend %s, scratch %s)"
	logFmtCloseFailed  = "Failed to release resource: %v"
	logFmtHistoryOff   = "History journal disabled: %v"
)

// ErrHistoryDisabled is returned by History when the journal is turned off.
var ErrHistoryDisabled = errors.New("history journal is disabled")

// App holds the loaded configuration, the final logger and every resource
// opened on their behalf.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	closers []func() error
	history *history.Store
}

// Bootstrap creates a bootstrap logger in the temp dir, loads the
// configuration (from configPath when set, otherwise through the
// configurator) and opens the final logger in paths.base_logs_dir.
func Bootstrap(configPath, logFile string) (*App, error) {
	bootstrapLog, err := logger.New(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	defer bootstrapLog.Close()

	bootstrapLog.Info("Bootstrap logger created.")

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(bootstrapLog)
	}

	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := logger.New(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, fmt.Errorf("failed to create final logger: %w", err)
	}

	finalLog.Info(logFmtConfigLoaded, cfg.Synthesis.Backend, cfg.Paths.ScratchDir)

	return New(cfg, finalLog), nil
}

// New wraps an already loaded configuration and logger.
func New(cfg *config.Config, log *logger.Logger) *App {
	return &App{Config: cfg, Logger: log}
}

// Close releases every resource in reverse order, then the logger.
func (a *App) Close() error {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		closeErr := a.closers[i]()
		if closeErr != nil {
			a.Logger.Warn(logFmtCloseFailed, closeErr)
			errs = append(errs, closeErr)
		}
	}

	a.closers = nil

	loggerErr := a.Logger.Close()
	if loggerErr != nil {
		errs = append(errs, loggerErr)
	}

	return errors.Join(errs...)
}

// DefaultVoice is the voice used when a request names none.
func (a *App) DefaultVoice() core.Voice {
	gender, _ := core.ParseGender(a.Config.Synthesis.Gender)

	return core.Voice{
		LanguageCode: a.Config.Synthesis.LanguageCode,
		Name:         a.Config.Synthesis.Voice,
		Gender:       gender,
	}
}

// Synthesizer builds the configured speech backend, wrapped in a cache
// when synthesis.cache_ttl_minutes is set.
func (a *App) Synthesizer(ctx context.Context) (core.Synthesizer, error) {
	var synthesizer core.Synthesizer

	switch a.Config.Synthesis.Backend {
	case config.BackendHTTP:
		synthesizer = tts.NewHTTPClient(a.Config.HTTPTTS.URL, a.Config.HTTPTimeout())
	default:
		google, err := tts.NewGoogleSynthesizer(ctx, a.Config.Google.CredentialsFile)
		if err != nil {
			return nil, err
		}

		a.closers = append(a.closers, google.Close)
		synthesizer = google
	}

	if ttl := a.Config.CacheTTL(); ttl > 0 {
		synthesizer = tts.NewCachingSynthesizer(ctx, synthesizer, ttl)
	}

	return synthesizer, nil
}

// Runner runs the external media tools.
func (a *App) Runner() media.Runner {
	return media.ExecRunner{}
}

// FFmpeg returns the configured ffmpeg command line.
func (a *App) FFmpeg() (media.Command, error) {
	return media.ParseCommand(a.Config.Media.FFmpegCommand)
}

// Prober returns an ffprobe wrapper.
func (a *App) Prober() (*media.Prober, error) {
	ffprobe, err := media.ParseCommand(a.Config.Media.FFprobeCommand)
	if err != nil {
		return nil, err
	}

	return media.NewProber(a.Runner(), ffprobe), nil
}

// Processor returns the audio effects processor.
func (a *App) Processor() (*media.Processor, error) {
	ffmpeg, err := a.FFmpeg()
	if err != nil {
		return nil, err
	}

	prober, err := a.Prober()
	if err != nil {
		return nil, err
	}

	return media.NewProcessor(a.Runner(), ffmpeg, prober, a.Logger), nil
}

// Renderer returns the background video renderer.
func (a *App) Renderer() (*media.Renderer, error) {
	ffmpeg, err := a.FFmpeg()
	if err != nil {
		return nil, err
	}

	return media.NewRenderer(a.Runner(), ffmpeg, a.Logger), nil
}

// History opens the run journal once. It returns ErrHistoryDisabled when
// history.enabled is false.
func (a *App) History(ctx context.Context) (*history.Store, error) {
	if !a.Config.History.Enabled {
		return nil, ErrHistoryDisabled
	}

	if a.history != nil {
		return a.history, nil
	}

	store, err := history.Open(ctx, a.Config.History.Path, a.Logger)
	if err != nil {
		return nil, err
	}

	a.history = store
	a.closers = append(a.closers, store.Close)

	return store, nil
}

// Converter wires the full conversion pipeline.
func (a *App) Converter(ctx context.Context) (*pipeline.Converter, error) {
	area, err := scratch.New(a.Config.Paths.ScratchDir, a.Logger)
	if err != nil {
		return nil, err
	}

	synthesizer, err := a.Synthesizer(ctx)
	if err != nil {
		return nil, err
	}

	sequencerConfig, err := a.Config.SequencerConfig()
	if err != nil {
		return nil, err
	}

	chunking, err := a.Config.ChunkingOptions()
	if err != nil {
		return nil, err
	}

	ffmpeg, err := a.FFmpeg()
	if err != nil {
		return nil, err
	}

	var recorder pipeline.Recorder

	store, historyErr := a.History(ctx)
	switch {
	case historyErr == nil:
		recorder = store
	case errors.Is(historyErr, ErrHistoryDisabled):
	default:
		a.Logger.Warn(logFmtHistoryOff, historyErr)
	}

	return pipeline.NewConverter(
		tts.NewSequencer(synthesizer, area, sequencerConfig, a.Logger),
		media.NewConcatenator(a.Runner(), ffmpeg, a.Config.ConcatTimeout(), a.Logger),
		area,
		recorder,
		pipeline.Options{Chunking: chunking, Normalize: a.Config.Chunking.Normalize},
		a.Logger,
	), nil
}

// Translator dials Cloud Translation.
func (a *App) Translator(ctx context.Context) (*translate.Client, error) {
	client, err := translate.New(ctx, translate.Settings{
		ProjectID: a.Config.Google.ProjectID,
		Location:  a.Config.Translate.Location,
		Model:     a.Config.Translate.Model,
	}, a.Config.Google.CredentialsFile, a.Logger)
	if err != nil {
		return nil, err
	}

	a.closers = append(a.closers, client.Close)

	return client, nil
}
