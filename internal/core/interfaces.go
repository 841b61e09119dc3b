// Package core defines the shared types and collaborator interfaces of the
// narration pipeline.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Accepted ranges for voice parameters.
const (
	MinSpeakingRate = 0.25
	MaxSpeakingRate = 4.0
	MinPitch        = -20.0
	MaxPitch        = 20.0
)

// ErrUnknownGender is returned for a gender outside MALE, FEMALE and NEUTRAL.
var ErrUnknownGender = errors.New("unknown voice gender")

// ErrUnknownEncoding is returned for an unsupported audio encoding.
var ErrUnknownEncoding = errors.New("unknown audio encoding")

// Gender is the requested voice gender.
type Gender string

const (
	GenderUnspecified Gender = ""
	GenderMale        Gender = "MALE"
	GenderFemale      Gender = "FEMALE"
	GenderNeutral     Gender = "NEUTRAL"
)

// ParseGender accepts any casing of MALE, FEMALE or NEUTRAL.
func ParseGender(value string) (Gender, error) {
	switch Gender(strings.ToUpper(strings.TrimSpace(value))) {
	case GenderMale:
		return GenderMale, nil
	case GenderFemale:
		return GenderFemale, nil
	case GenderNeutral:
		return GenderNeutral, nil
	default:
		return GenderUnspecified, fmt.Errorf("%w: %q", ErrUnknownGender, value)
	}
}

// Encoding is the container/codec of synthesized audio.
type Encoding string

const (
	EncodingMP3      Encoding = "mp3"
	EncodingLinear16 Encoding = "wav"
	EncodingOggOpus  Encoding = "ogg"
)

// ParseEncoding accepts mp3, wav (linear16) or ogg (opus).
func ParseEncoding(value string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "mp3":
		return EncodingMP3, nil
	case "wav", "linear16":
		return EncodingLinear16, nil
	case "ogg", "ogg_opus", "opus":
		return EncodingOggOpus, nil
	default:
		return EncodingMP3, fmt.Errorf("%w: %q", ErrUnknownEncoding, value)
	}
}

// Extension returns the file extension, with the leading dot.
func (e Encoding) Extension() string {
	return "." + string(e)
}

// Codec returns the ffmpeg encoder used when segments must be re-encoded.
func (e Encoding) Codec() string {
	switch e {
	case EncodingLinear16:
		return "pcm_s16le"
	case EncodingOggOpus:
		return "libopus"
	default:
		return "libmp3lame"
	}
}

// Voice selects the synthesis voice.
type Voice struct {
	LanguageCode string
	Name         string
	Gender       Gender
}

// AudioParams holds the output parameters for one synthesis call.
type AudioParams struct {
	Encoding     Encoding
	SpeakingRate float64
	Pitch        float64
}

// Synthesizer converts one markup document into encoded audio. An empty
// payload with a nil error means the service produced nothing.
type Synthesizer interface {
	Synthesize(ctx context.Context, markup string, voice Voice, params AudioParams) ([]byte, error)
}

// Translator translates and detects the language of story text.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage, sourceLanguage string) (string, error)
	Detect(ctx context.Context, text string) (string, error)
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	UploadFile(ctx context.Context, key, path string) error
}
