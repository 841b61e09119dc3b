// Package translate translates story text and detects its language with
// Google Cloud Translation v3.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	translateapi "cloud.google.com/go/translate/apiv3"
	"cloud.google.com/go/translate/apiv3/translatepb"
	"github.com/book-expert/logger"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// Defaults used when the configuration leaves them empty.
const (
	DefaultModel    = "general/nmt"
	DefaultLocation = "us-central1"
	detectLocation  = "global"
	mimeTypePlain   = "text/plain"
)

// Static errors.
var (
	ErrTextEmpty       = errors.New("text cannot be empty")
	ErrTargetEmpty     = errors.New("target language cannot be empty")
	ErrProjectEmpty    = errors.New("project id cannot be empty")
	ErrNoTranslation   = errors.New("service returned no translation")
	ErrNoLanguageFound = errors.New("service detected no language")
)

const (
	logFmtTranslated = "Translated %d characters from %q to %s"
	logFmtDetected   = "Detected language %s (confidence %.2f)"
)

// ServiceClient is the subset of the Translation client used here.
type ServiceClient interface {
	TranslateText(
		ctx context.Context,
		req *translatepb.TranslateTextRequest,
		opts ...gax.CallOption,
	) (*translatepb.TranslateTextResponse, error)
	DetectLanguage(
		ctx context.Context,
		req *translatepb.DetectLanguageRequest,
		opts ...gax.CallOption,
	) (*translatepb.DetectLanguageResponse, error)
	Close() error
}

// Settings identify the project and model used for translation.
type Settings struct {
	ProjectID string
	Location  string
	Model     string
}

// Client implements core.Translator.
type Client struct {
	service  ServiceClient
	settings Settings
	logger   *logger.Logger
}

// New dials the Translation service. An empty credentialsFile uses
// application default credentials.
func New(ctx context.Context, settings Settings, credentialsFile string, log *logger.Logger) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	service, clientErr := translateapi.NewTranslationClient(ctx, opts...)
	if clientErr != nil {
		return nil, fmt.Errorf("failed to create translation client: %w", clientErr)
	}

	client, newErr := NewWithService(service, settings, log)
	if newErr != nil {
		_ = service.Close()

		return nil, newErr
	}

	return client, nil
}

// NewWithService wraps an existing service client.
func NewWithService(service ServiceClient, settings Settings, log *logger.Logger) (*Client, error) {
	if settings.ProjectID == "" {
		return nil, ErrProjectEmpty
	}

	if settings.Location == "" {
		settings.Location = DefaultLocation
	}

	if settings.Model == "" {
		settings.Model = DefaultModel
	}

	return &Client{service: service, settings: settings, logger: log}, nil
}

// Translate returns text in targetLanguage. An empty sourceLanguage lets
// the service detect it.
func (c *Client) Translate(ctx context.Context, text, targetLanguage, sourceLanguage string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrTextEmpty
	}

	if targetLanguage == "" {
		return "", ErrTargetEmpty
	}

	parent := c.parent(c.settings.Location)

	resp, translateErr := c.service.TranslateText(ctx, &translatepb.TranslateTextRequest{
		Contents:           []string{text},
		MimeType:           mimeTypePlain,
		SourceLanguageCode: sourceLanguage,
		TargetLanguageCode: targetLanguage,
		Parent:             parent,
		Model:              parent + "/models/" + c.settings.Model,
	})
	if translateErr != nil {
		return "", fmt.Errorf("translate to %s: %w", targetLanguage, translateErr)
	}

	translations := resp.GetTranslations()
	if len(translations) == 0 || translations[0].GetTranslatedText() == "" {
		return "", ErrNoTranslation
	}

	c.logger.Info(logFmtTranslated, len(text), sourceLanguage, targetLanguage)

	return translations[0].GetTranslatedText(), nil
}

// Detect returns the most likely language code of text.
func (c *Client) Detect(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrTextEmpty
	}

	resp, detectErr := c.service.DetectLanguage(ctx, &translatepb.DetectLanguageRequest{
		Parent:   c.parent(detectLocation),
		MimeType: mimeTypePlain,
		Source:   &translatepb.DetectLanguageRequest_Content{Content: text},
	})
	if detectErr != nil {
		return "", fmt.Errorf("detect language: %w", detectErr)
	}

	languages := resp.GetLanguages()
	if len(languages) == 0 || languages[0].GetLanguageCode() == "" {
		return "", ErrNoLanguageFound
	}

	c.logger.Info(logFmtDetected, languages[0].GetLanguageCode(), languages[0].GetConfidence())

	return languages[0].GetLanguageCode(), nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.service.Close()
}

func (c *Client) parent(location string) string {
	return "projects/" + c.settings.ProjectID + "/locations/" + location
}
