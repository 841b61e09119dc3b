package media

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoDuration is returned when ffprobe reports no usable duration.
var ErrNoDuration = errors.New("media has no duration")

// Prober measures media files with ffprobe.
type Prober struct {
	runner  Runner
	ffprobe Command
}

// NewProber returns a Prober.
func NewProber(runner Runner, ffprobe Command) *Prober {
	return &Prober{runner: runner, ffprobe: ffprobe}
}

// Duration returns the container duration of path.
func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	args := p.ffprobe.With(
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	stdout, runErr := p.runner.Run(ctx, p.ffprobe.Name, args...)
	if runErr != nil {
		return 0, fmt.Errorf("probe %s: %w", path, runErr)
	}

	value := strings.TrimSpace(string(stdout))
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("%w: %s", ErrNoDuration, path)
	}

	seconds, parseErr := strconv.ParseFloat(value, 64)
	if parseErr != nil || seconds <= 0 {
		return 0, fmt.Errorf("%w: %s reported %q", ErrNoDuration, path, value)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}
