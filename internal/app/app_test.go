package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/narrator/internal/app"
	"github.com/book-expert/narrator/internal/config"
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/tts"
)

func newApp(t *testing.T, extra string) *app.App {
	t.Helper()

	dir := t.TempDir()
	tomlData := `
[paths]
scratch_dir = "` + filepath.Join(dir, "scratch") + `"

[synthesis]
backend = "http"
voice = "en-GB-Neural2-B"
language_code = "en-GB"
gender = "male"

[http_tts]
url = "http://127.0.0.1:1"
` + extra

	cfg, err := config.Decode([]byte(tomlData))
	require.NoError(t, err)

	log, err := logger.New(dir, "app-test.log")
	require.NoError(t, err)

	application := app.New(cfg, log)
	t.Cleanup(func() { _ = application.Close() })

	return application
}

func TestSynthesizer(t *testing.T) {
	t.Parallel()

	plain, err := newApp(t, "").Synthesizer(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &tts.HTTPClient{}, plain)
}

func TestSynthesizerCached(t *testing.T) {
	t.Parallel()

	application := newApp(t, "")
	application.Config.Synthesis.CacheTTLMinutes = 10

	synthesizer, err := application.Synthesizer(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &tts.CachingSynthesizer{}, synthesizer)
}

func TestDefaultVoice(t *testing.T) {
	t.Parallel()

	voice := newApp(t, "").DefaultVoice()
	assert.Equal(t, core.Voice{LanguageCode: "en-GB", Name: "en-GB-Neural2-B", Gender: core.GenderMale}, voice)
}

func TestHistory(t *testing.T) {
	t.Parallel()

	_, err := newApp(t, "").History(context.Background())
	require.ErrorIs(t, err, app.ErrHistoryDisabled)

	enabled := newApp(t, "\n[history]\nenabled = true\n")

	first, err := enabled.History(context.Background())
	require.NoError(t, err)

	second, err := enabled.History(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestConverterAndMedia(t *testing.T) {
	t.Parallel()

	application := newApp(t, "\n[history]\nenabled = true\n")

	converter, err := application.Converter(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, converter)

	processor, err := application.Processor()
	require.NoError(t, err)
	assert.NotNil(t, processor)

	renderer, err := application.Renderer()
	require.NoError(t, err)
	assert.NotNil(t, renderer)

	ffmpeg, err := application.FFmpeg()
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg", ffmpeg.Name)
}
