package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
)

// Static errors.
var (
	ErrInputMissing  = errors.New("audio input missing")
	ErrNoEffects     = errors.New("no audio effect is enabled")
	ErrSameInOut     = errors.New("input and output must differ")
	ErrEffectsFailed = errors.New("applying audio effects failed")
)

const (
	logFmtEffectsStarted  = "Applying effects to %s: %s"
	logFmtEffectsFinished = "Wrote %s in %s"
	logFmtNoDuration      = "Could not measure %s, fade out disabled: %v"
)

// Processor applies Effects to a finished narration.
type Processor struct {
	runner Runner
	ffmpeg Command
	prober *Prober
	logger *logger.Logger
}

// NewProcessor returns a Processor. prober may be nil; fade outs are then
// skipped because their start depends on the audio duration.
func NewProcessor(runner Runner, ffmpeg Command, prober *Prober, log *logger.Logger) *Processor {
	return &Processor{runner: runner, ffmpeg: ffmpeg, prober: prober, logger: log}
}

// Apply writes input with effects applied to output. The output codec
// follows the output extension.
func (p *Processor) Apply(ctx context.Context, input, output string, effects Effects) error {
	inputErr := checkInput(input, output)
	if inputErr != nil {
		return inputErr
	}

	effectsErr := effects.Validate()
	if effectsErr != nil {
		return effectsErr
	}

	args, argsErr := p.Args(ctx, input, output, effects)
	if argsErr != nil {
		return argsErr
	}

	started := time.Now()

	p.logger.Info(logFmtEffectsStarted, input, strings.Join(args, " "))

	_, runErr := p.runner.Run(ctx, p.ffmpeg.Name, args...)
	if runErr != nil {
		var exitErr *ExitError
		if errors.As(runErr, &exitErr) {
			return fmt.Errorf("%w: %s", ErrEffectsFailed, exitErr.Stderr)
		}

		return fmt.Errorf("%w: %w", ErrEffectsFailed, runErr)
	}

	p.logger.Info(logFmtEffectsFinished, output, time.Since(started).Round(time.Millisecond))

	return nil
}

// Args builds the ffmpeg argument list. It returns ErrNoEffects when the
// filter chain would be empty.
func (p *Processor) Args(ctx context.Context, input, output string, effects Effects) ([]string, error) {
	filter := effects.Filter(p.audioDuration(ctx, input, effects))
	if filter == "" {
		return nil, ErrNoEffects
	}

	return p.ffmpeg.With("-i", input, "-af", filter, "-c:a", codecFor(output), output), nil
}

func (p *Processor) audioDuration(ctx context.Context, input string, effects Effects) time.Duration {
	if effects.FadeOutSeconds <= 0 || p.prober == nil {
		return 0
	}

	duration, probeErr := p.prober.Duration(ctx, input)
	if probeErr != nil {
		p.logger.Warn(logFmtNoDuration, input, probeErr)

		return 0
	}

	return duration
}

func checkInput(input, output string) error {
	if input == "" || output == "" {
		return fmt.Errorf("%w: empty path", ErrInputMissing)
	}

	_, statErr := os.Stat(input)
	if statErr != nil {
		return fmt.Errorf("%w: %w", ErrInputMissing, statErr)
	}

	if filepath.Clean(input) == filepath.Clean(output) {
		return ErrSameInOut
	}

	return nil
}
