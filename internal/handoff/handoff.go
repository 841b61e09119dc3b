// Package handoff reads and writes the directory of one-value files that
// front ends use to pass conversion settings to the narrator.
package handoff

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/book-expert/narrator/internal/core"
)

// File names, one value per file.
const (
	TextFile        = "text_for_user.txt"
	VoiceFile       = "voice_config.txt"
	CountryCodeFile = "country_code.txt"
	GenderFile      = "gender.txt"
	SpeedFile       = "speed.txt"
	PitchFile       = "pitch.txt"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600
)

// Static errors.
var (
	ErrMissingValue = errors.New("hand-off value missing")
	ErrInvalidValue = errors.New("hand-off value invalid")
)

// Settings are the values exchanged through the hand-off directory.
type Settings struct {
	Text         string
	Voice        core.Voice
	SpeakingRate float64
	Pitch        float64
}

// Read loads Settings from dir. Every file must exist and hold a non-empty
// value.
func Read(dir string) (Settings, error) {
	var (
		settings Settings
		values   = make(map[string]string, 6)
	)

	for _, name := range []string{TextFile, VoiceFile, CountryCodeFile, GenderFile, SpeedFile, PitchFile} {
		value, readErr := readValue(dir, name)
		if readErr != nil {
			return Settings{}, readErr
		}

		values[name] = value
	}

	gender, genderErr := core.ParseGender(values[GenderFile])
	if genderErr != nil {
		return Settings{}, fmt.Errorf("%w: %s: %w", ErrInvalidValue, GenderFile, genderErr)
	}

	rate, rateErr := parseNumber(SpeedFile, values[SpeedFile])
	if rateErr != nil {
		return Settings{}, rateErr
	}

	pitch, pitchErr := parseNumber(PitchFile, values[PitchFile])
	if pitchErr != nil {
		return Settings{}, pitchErr
	}

	settings.Text = values[TextFile]
	settings.Voice = core.Voice{
		LanguageCode: values[CountryCodeFile],
		Name:         values[VoiceFile],
		Gender:       gender,
	}
	settings.SpeakingRate = rate
	settings.Pitch = pitch

	return settings, nil
}

// Write stores settings in dir, creating it when needed.
func Write(dir string, settings Settings) error {
	mkdirErr := os.MkdirAll(dir, dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create hand-off directory %s: %w", dir, mkdirErr)
	}

	files := map[string]string{
		TextFile:        settings.Text,
		VoiceFile:       settings.Voice.Name,
		CountryCodeFile: settings.Voice.LanguageCode,
		GenderFile:      string(settings.Voice.Gender),
		SpeedFile:       strconv.FormatFloat(settings.SpeakingRate, 'f', -1, 64),
		PitchFile:       strconv.FormatFloat(settings.Pitch, 'f', -1, 64),
	}

	for name, value := range files {
		writeErr := os.WriteFile(filepath.Join(dir, name), []byte(value), filePermissions)
		if writeErr != nil {
			return fmt.Errorf("failed to write %s: %w", name, writeErr)
		}
	}

	return nil
}

func readValue(dir, name string) (string, error) {
	data, readErr := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(readErr, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s does not exist", ErrMissingValue, name)
	}

	if readErr != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, readErr)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMissingValue, name)
	}

	return value, nil
}

func parseNumber(name, value string) (float64, error) {
	number, parseErr := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if parseErr != nil {
		return 0, fmt.Errorf("%w: %s: %q is not a number", ErrInvalidValue, name, value)
	}

	return number, nil
}
