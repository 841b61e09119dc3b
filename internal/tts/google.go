package tts

import (
	"context"
	"errors"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/book-expert/narrator/internal/core"
)

// ErrMarkupEmpty is returned when a synthesis call receives no markup.
var ErrMarkupEmpty = errors.New("markup cannot be empty")

const errFmtGoogleSynthesis = "google text-to-speech request failed: %w"

// SpeechClient is the subset of the Cloud Text-to-Speech client used here.
type SpeechClient interface {
	SynthesizeSpeech(
		ctx context.Context,
		req *texttospeechpb.SynthesizeSpeechRequest,
		opts ...gax.CallOption,
	) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// GoogleSynthesizer sends SSML to Google Cloud Text-to-Speech.
type GoogleSynthesizer struct {
	client SpeechClient
}

// NewGoogleSynthesizer dials the speech service. An empty credentialsFile
// falls back to application default credentials.
func NewGoogleSynthesizer(ctx context.Context, credentialsFile string) (*GoogleSynthesizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, clientErr := texttospeech.NewClient(ctx, opts...)
	if clientErr != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", clientErr)
	}

	return &GoogleSynthesizer{client: client}, nil
}

// NewGoogleSynthesizerWithClient wraps an existing client.
func NewGoogleSynthesizerWithClient(client SpeechClient) *GoogleSynthesizer {
	return &GoogleSynthesizer{client: client}
}

// Synthesize implements core.Synthesizer.
func (g *GoogleSynthesizer) Synthesize(
	ctx context.Context,
	markup string,
	voice core.Voice,
	params core.AudioParams,
) ([]byte, error) {
	if markup == "" {
		return nil, ErrMarkupEmpty
	}

	resp, synthErr := g.client.SynthesizeSpeech(ctx, buildSpeechRequest(markup, voice, params))
	if synthErr != nil {
		return nil, fmt.Errorf(errFmtGoogleSynthesis, synthErr)
	}

	return resp.GetAudioContent(), nil
}

// Close releases the underlying connection.
func (g *GoogleSynthesizer) Close() error {
	return g.client.Close()
}

func buildSpeechRequest(
	markup string,
	voice core.Voice,
	params core.AudioParams,
) *texttospeechpb.SynthesizeSpeechRequest {
	rate := params.SpeakingRate
	if rate == 0 {
		rate = 1.0
	}

	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Ssml{Ssml: markup},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: voice.LanguageCode,
			Name:         voice.Name,
			SsmlGender:   speechGender(voice.Gender),
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: speechEncoding(params.Encoding),
			SpeakingRate:  rate,
			Pitch:         params.Pitch,
		},
	}
}

func speechGender(gender core.Gender) texttospeechpb.SsmlVoiceGender {
	switch gender {
	case core.GenderMale:
		return texttospeechpb.SsmlVoiceGender_MALE
	case core.GenderFemale:
		return texttospeechpb.SsmlVoiceGender_FEMALE
	case core.GenderNeutral:
		return texttospeechpb.SsmlVoiceGender_NEUTRAL
	default:
		return texttospeechpb.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED
	}
}

func speechEncoding(encoding core.Encoding) texttospeechpb.AudioEncoding {
	switch encoding {
	case core.EncodingLinear16:
		return texttospeechpb.AudioEncoding_LINEAR16
	case core.EncodingOggOpus:
		return texttospeechpb.AudioEncoding_OGG_OPUS
	default:
		return texttospeechpb.AudioEncoding_MP3
	}
}
