package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Limits for audio effects.
const (
	MaxVolume          = 10.0
	MaxFilterFrequency = 20000
)

const (
	errFmtVolumeRange     = "%w: volume must be between 0.0 and %.1f"
	errFmtFadeNegative    = "%w: fades must be non-negative"
	errFmtFrequencyRange  = "%w: %s filter must be between 0 and %d Hz"
	errFmtFilterCrossover = "%w: high pass %d Hz must be below low pass %d Hz"
)

// ErrInvalidEffects is returned by Effects.Validate.
var ErrInvalidEffects = errors.New("invalid audio effects")

// Effects are the optional post-processing steps applied to a finished
// narration. A zero value changes nothing.
type Effects struct {
	Volume         float64 `toml:"volume"`
	FadeInSeconds  float64 `toml:"fade_in_seconds"`
	FadeOutSeconds float64 `toml:"fade_out_seconds"`
	HighPass       int     `toml:"high_pass"`
	LowPass        int     `toml:"low_pass"`
	Normalize      bool    `toml:"normalize"`
}

// Validate checks the effect parameters.
func (e Effects) Validate() error {
	if e.Volume < 0 || e.Volume > MaxVolume {
		return fmt.Errorf(errFmtVolumeRange, ErrInvalidEffects, MaxVolume)
	}

	if e.FadeInSeconds < 0 || e.FadeOutSeconds < 0 {
		return fmt.Errorf(errFmtFadeNegative, ErrInvalidEffects)
	}

	if e.HighPass < 0 || e.HighPass > MaxFilterFrequency {
		return fmt.Errorf(errFmtFrequencyRange, ErrInvalidEffects, "high pass", MaxFilterFrequency)
	}

	if e.LowPass < 0 || e.LowPass > MaxFilterFrequency {
		return fmt.Errorf(errFmtFrequencyRange, ErrInvalidEffects, "low pass", MaxFilterFrequency)
	}

	if e.HighPass > 0 && e.LowPass > 0 && e.HighPass >= e.LowPass {
		return fmt.Errorf(errFmtFilterCrossover, ErrInvalidEffects, e.HighPass, e.LowPass)
	}

	return nil
}

// Filter returns the ffmpeg -af chain for audio of the given duration, or
// "" when no effect is enabled. The fade out needs the duration to know
// where to start; it is skipped when the duration is unknown.
func (e Effects) Filter(duration time.Duration) string {
	var filters []string

	if e.Volume > 0 && e.Volume != 1 {
		filters = append(filters, "volume="+formatFloat(e.Volume))
	}

	if e.FadeInSeconds > 0 {
		filters = append(filters, "afade=t=in:st=0:d="+formatFloat(e.FadeInSeconds))
	}

	total := duration.Seconds()
	if e.FadeOutSeconds > 0 && total > e.FadeOutSeconds {
		filters = append(filters, fmt.Sprintf("afade=t=out:st=%s:d=%s",
			formatFloat(total-e.FadeOutSeconds), formatFloat(e.FadeOutSeconds)))
	}

	if e.HighPass > 0 {
		filters = append(filters, "highpass=f="+strconv.Itoa(e.HighPass))
	}

	if e.LowPass > 0 {
		filters = append(filters, "lowpass=f="+strconv.Itoa(e.LowPass))
	}

	if e.Normalize {
		filters = append(filters, "loudnorm")
	}

	return strings.Join(filters, ",")
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
