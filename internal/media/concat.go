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

	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/scratch"
)

// Static errors.
var (
	ErrNoSegmentsToConcatenate = errors.New("no segments to concatenate")
	ErrConcatenationFailed     = errors.New("concatenation failed")
	ErrIndeterminateCompletion = errors.New("concatenation completion could not be confirmed")
)

const (
	concatListName  = "concat_list.txt"
	filePermissions = 0o600

	errFmtConcatFailed   = "%w: %s"
	errFmtIndeterminate  = "%w: %s"
	logFmtPromoted       = "Single segment promoted to %s"
	logFmtConcatStarted  = "Concatenating %d segments into %s"
	logFmtStreamCopyFail = "Stream copy failed, re-encoding with %s: %v"
	logFmtConcatFinished = "Concatenated %d segments into %s (%d bytes)"
	logFmtListNotRemoved = "Could not remove concat list %s: %v"
	logFmtIndeterminate  = "Concatenation outcome unknown for %s: %s"
	reasonTimedOut       = "timed out after %s"
	reasonOutputMissing  = "tool exited cleanly but %s is missing or empty"
)

// Concatenator merges ordered audio segments into one artifact.
type Concatenator interface {
	Concatenate(ctx context.Context, segments []string, output string) error
}

// FFmpegConcatenator concatenates with the ffmpeg concat demuxer.
type FFmpegConcatenator struct {
	runner  Runner
	ffmpeg  Command
	timeout time.Duration
	logger  *logger.Logger
}

// NewConcatenator returns an FFmpegConcatenator. A zero timeout means the
// merge is bounded only by ctx.
func NewConcatenator(runner Runner, ffmpeg Command, timeout time.Duration, log *logger.Logger) *FFmpegConcatenator {
	return &FFmpegConcatenator{
		runner:  runner,
		ffmpeg:  ffmpeg,
		timeout: timeout,
		logger:  log,
	}
}

// Concatenate writes segments, in order, to output. One segment is moved
// into place without invoking ffmpeg. Several segments are joined with
// stream copy, falling back once to re-encoding with the codec implied by
// the output extension. Success requires a clean exit and a non-empty
// output file; anything else that did not fail outright wraps
// ErrIndeterminateCompletion.
func (c *FFmpegConcatenator) Concatenate(ctx context.Context, segments []string, output string) error {
	switch len(segments) {
	case 0:
		return ErrNoSegmentsToConcatenate
	case 1:
		return c.promote(segments[0], output)
	}

	removeErr := os.Remove(output)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("failed to remove previous artifact %s: %w", output, removeErr)
	}

	listPath := filepath.Join(filepath.Dir(output), concatListName)

	listErr := writeConcatList(listPath, segments)
	if listErr != nil {
		return listErr
	}

	defer func() {
		cleanupErr := os.Remove(listPath)
		if cleanupErr != nil && !os.IsNotExist(cleanupErr) {
			c.logger.Warn(logFmtListNotRemoved, listPath, cleanupErr)
		}
	}()

	c.logger.Info(logFmtConcatStarted, len(segments), output)

	runErr := c.run(ctx, listPath, output, "-c", "copy")

	var exitErr *ExitError
	if errors.As(runErr, &exitErr) {
		codec := codecFor(output)
		c.logger.Warn(logFmtStreamCopyFail, codec, exitErr)

		runErr = c.run(ctx, listPath, output, "-c:a", codec)
	}

	if runErr != nil {
		return c.classify(ctx, runErr, output)
	}

	info, statErr := os.Stat(output)
	if statErr != nil || info.Size() == 0 {
		reason := fmt.Sprintf(reasonOutputMissing, output)
		c.logger.Warn(logFmtIndeterminate, output, reason)

		return fmt.Errorf(errFmtIndeterminate, ErrIndeterminateCompletion, reason)
	}

	c.logger.Info(logFmtConcatFinished, len(segments), output, info.Size())

	return nil
}

func (c *FFmpegConcatenator) run(ctx context.Context, listPath, output string, codecArgs ...string) error {
	runCtx := ctx

	if c.timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := c.ffmpeg.With("-f", "concat", "-safe", "0", "-i", listPath)
	args = append(args, codecArgs...)
	args = append(args, output)

	_, runErr := c.runner.Run(runCtx, c.ffmpeg.Name, args...)

	return runErr
}

func (c *FFmpegConcatenator) classify(ctx context.Context, runErr error, output string) error {
	var exitErr *ExitError
	if errors.As(runErr, &exitErr) {
		return fmt.Errorf(errFmtConcatFailed, ErrConcatenationFailed, exitErr.Stderr)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("concatenation interrupted: %w", ctx.Err())
	}

	if errors.Is(runErr, context.DeadlineExceeded) {
		reason := fmt.Sprintf(reasonTimedOut, c.timeout)
		c.logger.Warn(logFmtIndeterminate, output, reason)

		return fmt.Errorf(errFmtIndeterminate, ErrIndeterminateCompletion, reason)
	}

	return fmt.Errorf("%w: %w", ErrConcatenationFailed, runErr)
}

// promote moves the only segment to output, copying when a rename is not
// possible, for example across file systems.
func (c *FFmpegConcatenator) promote(segment, output string) error {
	if segment == output {
		return nil
	}

	renameErr := os.Rename(segment, output)
	if renameErr == nil {
		c.logger.Info(logFmtPromoted, output)

		return nil
	}

	copyErr := scratch.CopyFile(segment, output)
	if copyErr != nil {
		return fmt.Errorf("%w: promote %s: %w", ErrConcatenationFailed, segment, copyErr)
	}

	c.logger.Info(logFmtPromoted, output)

	return nil
}

// writeConcatList writes the concat demuxer input. Paths are absolute and
// single quotes are escaped the way the demuxer expects.
func writeConcatList(listPath string, segments []string) error {
	var builder strings.Builder

	for _, segment := range segments {
		absPath, absErr := filepath.Abs(segment)
		if absErr != nil {
			return fmt.Errorf("resolve segment %s: %w", segment, absErr)
		}

		builder.WriteString("file '")
		builder.WriteString(strings.ReplaceAll(absPath, "'", `'\''`))
		builder.WriteString("'\n")
	}

	writeErr := os.WriteFile(listPath, []byte(builder.String()), filePermissions)
	if writeErr != nil {
		return fmt.Errorf("write concat list: %w", writeErr)
	}

	return nil
}

func codecFor(output string) string {
	encoding, parseErr := core.ParseEncoding(strings.TrimPrefix(filepath.Ext(output), "."))
	if parseErr != nil {
		encoding = core.EncodingMP3
	}

	return encoding.Codec()
}
