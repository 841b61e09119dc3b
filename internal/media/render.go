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
	ErrNothingToRender = errors.New("video needs narration audio or subtitles")
	ErrRenderFailed    = errors.New("rendering video failed")
)

const (
	videoCodec = "libx264"
	audioCodec = "aac"
	pixFormat  = "yuv420p"

	logFmtRenderStarted  = "Rendering %s: %s"
	logFmtRenderFinished = "Wrote %s in %s"
)

// Video describes one render: a background video, optionally looped under
// the narration, with optional burned-in subtitles.
type Video struct {
	Background string
	Audio      string
	Subtitles  string
	Output     string
}

// Renderer combines a background video with narration and subtitles in a
// single ffmpeg pass.
type Renderer struct {
	runner Runner
	ffmpeg Command
	logger *logger.Logger
}

// NewRenderer returns a Renderer.
func NewRenderer(runner Runner, ffmpeg Command, log *logger.Logger) *Renderer {
	return &Renderer{runner: runner, ffmpeg: ffmpeg, logger: log}
}

// Render writes video.Output. With narration audio the background loops
// until the audio ends; without it the subtitles are burned into the video
// and its own audio is copied.
func (r *Renderer) Render(ctx context.Context, video Video) error {
	checkErr := video.check()
	if checkErr != nil {
		return checkErr
	}

	args := r.Args(video)
	started := time.Now()

	r.logger.Info(logFmtRenderStarted, video.Output, strings.Join(args, " "))

	_, runErr := r.runner.Run(ctx, r.ffmpeg.Name, args...)
	if runErr != nil {
		var exitErr *ExitError
		if errors.As(runErr, &exitErr) {
			return fmt.Errorf("%w: %s", ErrRenderFailed, exitErr.Stderr)
		}

		return fmt.Errorf("%w: %w", ErrRenderFailed, runErr)
	}

	r.logger.Info(logFmtRenderFinished, video.Output, time.Since(started).Round(time.Millisecond))

	return nil
}

// Args builds the ffmpeg argument list for video.
func (r *Renderer) Args(video Video) []string {
	var args []string

	if video.Audio != "" {
		args = append(args, "-stream_loop", "-1", "-i", video.Background, "-i", video.Audio)
	} else {
		args = append(args, "-i", video.Background)
	}

	if video.Subtitles != "" {
		args = append(args, "-vf", "subtitles="+escapeFilterValue(video.Subtitles))
	}

	if video.Audio != "" {
		args = append(args,
			"-map", "0:v:0", "-map", "1:a:0",
			"-c:v", videoCodec, "-pix_fmt", pixFormat,
			"-c:a", audioCodec, "-shortest",
		)
	} else {
		args = append(args, "-c:a", "copy")
	}

	return r.ffmpeg.With(append(args, video.Output)...)
}

func (v Video) check() error {
	if v.Audio == "" && v.Subtitles == "" {
		return ErrNothingToRender
	}

	if v.Background == "" || v.Output == "" {
		return fmt.Errorf("%w: empty path", ErrInputMissing)
	}

	inputs := []string{v.Background}

	for _, optional := range []string{v.Audio, v.Subtitles} {
		if optional != "" {
			inputs = append(inputs, optional)
		}
	}

	for _, input := range inputs {
		_, statErr := os.Stat(input)
		if statErr != nil {
			return fmt.Errorf("%w: %w", ErrInputMissing, statErr)
		}

		if filepath.Clean(input) == filepath.Clean(v.Output) {
			return ErrSameInOut
		}
	}

	return nil
}

var filterEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`, `[`, `\[`, `]`, `\]`, `;`, `\;`)

// escapeFilterValue escapes a path for use as a filtergraph option value.
func escapeFilterValue(path string) string {
	return filterEscaper.Replace(path)
}
