package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/narrator/internal/core"
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid conversion request")

// Request is everything one conversion needs.
type Request struct {
	Text         string
	Voice        core.Voice
	SpeakingRate float64
	Pitch        float64
	Encoding     core.Encoding
}

// Validate checks the request before any remote call is made. A zero
// speaking rate means the neutral rate and an empty encoding means mp3.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: text is empty", ErrInvalidRequest)
	}

	if strings.TrimSpace(r.Voice.Name) == "" {
		return fmt.Errorf("%w: voice name is empty", ErrInvalidRequest)
	}

	if strings.TrimSpace(r.Voice.LanguageCode) == "" {
		return fmt.Errorf("%w: language code is empty", ErrInvalidRequest)
	}

	_, genderErr := core.ParseGender(string(r.Voice.Gender))
	if genderErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, genderErr)
	}

	rate := r.rate()
	if rate < core.MinSpeakingRate || rate > core.MaxSpeakingRate {
		return fmt.Errorf("%w: speaking rate %.2f outside %.2f..%.2f",
			ErrInvalidRequest, rate, core.MinSpeakingRate, core.MaxSpeakingRate)
	}

	if r.Pitch < core.MinPitch || r.Pitch > core.MaxPitch {
		return fmt.Errorf("%w: pitch %.1f outside %.0f..%.0f",
			ErrInvalidRequest, r.Pitch, core.MinPitch, core.MaxPitch)
	}

	_, encodingErr := core.ParseEncoding(string(r.Encoding))
	if encodingErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, encodingErr)
	}

	return nil
}

func (r Request) rate() float64 {
	if r.SpeakingRate == 0 {
		return 1.0
	}

	return r.SpeakingRate
}

func (r Request) encoding() core.Encoding {
	encoding, _ := core.ParseEncoding(string(r.Encoding))

	return encoding
}

func (r Request) voice() core.Voice {
	voice := r.Voice
	voice.Gender, _ = core.ParseGender(string(r.Voice.Gender))

	return voice
}

func (r Request) params() core.AudioParams {
	return core.AudioParams{
		Encoding:     r.encoding(),
		SpeakingRate: r.rate(),
		Pitch:        r.Pitch,
	}
}

// Effective returns the voice and audio parameters the request resolves
// to after defaults are applied.
func (r Request) Effective() (core.Voice, core.AudioParams) {
	return r.voice(), r.params()
}
