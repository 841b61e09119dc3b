// Package subtitles builds SRT subtitles that spread a story's sentences
// evenly over the narration.
package subtitles

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNoText          = errors.New("no subtitle text")
	ErrInvalidDuration = errors.New("audio duration must be positive")
)

const filePermissions = 0o600

// sentenceEnd matches terminal punctuation, with any closing quotes, that
// is followed by whitespace.
var sentenceEnd = regexp.MustCompile(`[.!?…]+["'”’)]*\s+`)

// Cue is one numbered subtitle entry.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Sentences splits text into trimmed sentences, keeping their punctuation.
// Line breaks inside a sentence become spaces.
func Sentences(text string) []string {
	flattened := strings.Join(strings.Fields(text), " ")
	if flattened == "" {
		return nil
	}

	var sentences []string

	last := 0

	for _, bounds := range sentenceEnd.FindAllStringIndex(flattened+" ", -1) {
		end := min(bounds[1], len(flattened))

		sentence := strings.TrimSpace(flattened[last:end])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}

		last = end
	}

	if rest := strings.TrimSpace(flattened[min(last, len(flattened)):]); rest != "" {
		sentences = append(sentences, rest)
	}

	return sentences
}

// Build gives every sentence an equal share of total. Boundaries are
// computed from the start so rounding never accumulates.
func Build(text string, total time.Duration) ([]Cue, error) {
	if total <= 0 {
		return nil, ErrInvalidDuration
	}

	sentences := Sentences(text)
	if len(sentences) == 0 {
		return nil, ErrNoText
	}

	count := time.Duration(len(sentences))
	cues := make([]Cue, 0, len(sentences))

	for position, sentence := range sentences {
		cues = append(cues, Cue{
			Index: position + 1,
			Start: total * time.Duration(position) / count,
			End:   total * time.Duration(position+1) / count,
			Text:  sentence,
		})
	}

	return cues, nil
}

// FormatTimestamp renders d as HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	seconds := (d % time.Minute) / time.Second
	millis := (d % time.Second) / time.Millisecond

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}

// Render returns the SRT document for cues.
func Render(cues []Cue) string {
	var builder strings.Builder

	for _, cue := range cues {
		fmt.Fprintf(&builder, "%d\n%s --> %s\n%s\n\n",
			cue.Index, FormatTimestamp(cue.Start), FormatTimestamp(cue.End), cue.Text)
	}

	return builder.String()
}

// WriteFile renders cues into path.
func WriteFile(path string, cues []Cue) error {
	writeErr := os.WriteFile(path, []byte(Render(cues)), filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write subtitles %s: %w", path, writeErr)
	}

	return nil
}
