package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/narrator/internal/app"
	"github.com/book-expert/narrator/internal/config"
	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/handoff"
	"github.com/book-expert/narrator/internal/media"
)

func newTestApp(t *testing.T, serviceURL string) *app.App {
	t.Helper()

	dir := t.TempDir()
	tomlData := `
[paths]
scratch_dir = "` + filepath.Join(dir, "scratch") + `"

[synthesis]
backend = "http"
voice = "en-US-Wavenet-D"
language_code = "en-US"
gender = "MALE"
speaking_rate = 1.2

[http_tts]
url = "` + serviceURL + `"

[history]
enabled = true
`

	cfg, err := config.Decode([]byte(tomlData))
	require.NoError(t, err)

	log, err := logger.New(dir, "cli-test.log")
	require.NoError(t, err)

	application := app.New(cfg, log)
	t.Cleanup(func() { _ = application.Close() })

	return application
}

func TestRootCommand(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	assert.NotNil(t, root.PersistentFlags().Lookup(flagConfig))

	names := make([]string, 0, len(root.Commands()))
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}

	for _, expected := range []string{"convert", "translate", "detect", "subtitles", "effects", "video", "history", "health"} {
		assert.Contains(t, names, expected)
	}
}

func TestConvertCommandFlags(t *testing.T) {
	t.Parallel()

	cmd := newConvertCommand(&rootOptions{})

	for _, name := range []string{
		flagText, flagFile, flagHandoff, flagVoice, flagLanguage, flagGender,
		flagRate, flagPitch, flagEncoding, flagOutput, flagTitle, flagTranslateTo,
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestStoryFlagsRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "story.txt")
	require.NoError(t, os.WriteFile(path, []byte("  From a file.\n"), 0o600))

	tests := []struct {
		name     string
		flags    storyFlags
		expected string
		err      error
	}{
		{name: "text", flags: storyFlags{text: "Hello, world!"}, expected: "Hello, world!"},
		{name: "file", flags: storyFlags{file: path}, expected: "From a file."},
		{name: "neither", flags: storyFlags{}, err: errNoStory},
		{name: "both", flags: storyFlags{text: "a", file: path}, err: errBothStory},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			story, err := testCase.flags.read()
			if testCase.err != nil {
				require.ErrorIs(t, err, testCase.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, testCase.expected, story)
		})
	}
}

func TestResolveRequest_Layers(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, "http://127.0.0.1:1")

	fromConfig, err := resolveRequest(application, &convertOptions{story: storyFlags{text: "Once."}})
	require.NoError(t, err)
	assert.Equal(t, "Once.", fromConfig.Text)
	assert.Equal(t, "en-US-Wavenet-D", fromConfig.Voice.Name)
	assert.InEpsilon(t, 1.2, fromConfig.SpeakingRate, 0.001)
	assert.Equal(t, core.EncodingMP3, fromConfig.Encoding)

	handoffDir := t.TempDir()
	require.NoError(t, handoff.Write(handoffDir, handoff.Settings{
		Text:         "From the hand-off.",
		Voice:        core.Voice{LanguageCode: "fr-FR", Name: "fr-FR-Neural2-A", Gender: core.GenderFemale},
		SpeakingRate: 0.9,
		Pitch:        -1,
	}))

	pitch := 3.0
	layered, err := resolveRequest(application, &convertOptions{
		handoffDir: handoffDir,
		voice:      "fr-FR-Neural2-C",
		encoding:   "wav",
		pitch:      &pitch,
	})
	require.NoError(t, err)
	assert.Equal(t, "From the hand-off.", layered.Text)
	assert.Equal(t, "fr-FR-Neural2-C", layered.Voice.Name)
	assert.Equal(t, "fr-FR", layered.Voice.LanguageCode)
	assert.Equal(t, core.GenderFemale, layered.Voice.Gender)
	assert.InEpsilon(t, 0.9, layered.SpeakingRate, 0.001)
	assert.InEpsilon(t, 3.0, layered.Pitch, 0.001)
	assert.Equal(t, core.Encoding("wav"), layered.Encoding)
}

func TestResolveRequest_Errors(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, "http://127.0.0.1:1")

	_, err := resolveRequest(application, &convertOptions{})
	require.ErrorIs(t, err, errNoStory)

	_, err = resolveRequest(application, &convertOptions{handoffDir: t.TempDir()})
	require.ErrorIs(t, err, handoff.ErrMissingValue)
}

func TestRunConvert_SingleFragment(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3 narrated"))
	}))
	t.Cleanup(server.Close)

	application := newTestApp(t, server.URL)
	output := filepath.Join(t.TempDir(), "out", "story.mp3")

	var stdout bytes.Buffer

	err := runConvert(context.Background(), &stdout, application, &convertOptions{
		story:  storyFlags{text: "A short story."},
		output: output,
		title:  "Short Story",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3 narrated"), data)
	assert.Contains(t, stdout.String(), "Conversion complete.")
	assert.Contains(t, stdout.String(), output)

	store, err := application.History(context.Background())
	require.NoError(t, err)

	runs, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "success", runs[0].Status)

	titles, err := store.Titles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Short Story"}, titles)

	var table bytes.Buffer

	require.NoError(t, printRuns(&table, runs))
	assert.Contains(t, table.String(), "en-US-Wavenet-D")
}

func TestRunConvert_RemoteFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	application := newTestApp(t, server.URL)

	var stdout bytes.Buffer

	err := runConvert(context.Background(), &stdout, application, &convertOptions{
		story: storyFlags{text: "Nobody will hear this."},
	})
	require.Error(t, err)
	assert.Contains(t, stdout.String(), "The speech service produced no audio")
}

func TestVideoCommandFlags(t *testing.T) {
	t.Parallel()

	cmd := newVideoCommand(&rootOptions{})

	for _, name := range []string{flagVideo, flagAudio, flagSubtitles, flagOutput, flagText, flagFile} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestRunVideo_Errors(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, "http://127.0.0.1:1")
	background := filepath.Join(t.TempDir(), "beach.mp4")

	tests := []struct {
		name string
		opts videoOptions
		err  error
	}{
		{
			name: "no output",
			opts: videoOptions{video: media.Video{Background: background}},
			err:  errOutputRequired,
		},
		{
			name: "story without audio",
			opts: videoOptions{
				story: storyFlags{text: "Once."},
				video: media.Video{Background: background, Output: "story.mp4"},
			},
			err: errSubtitlesNeedAudio,
		},
		{
			name: "story and subtitles",
			opts: videoOptions{
				story:     storyFlags{text: "Once."},
				video:     media.Video{Background: background, Audio: "final_audio.mp3", Output: "story.mp4"},
				subtitles: "story.srt",
			},
			err: errSubtitlesFromBoth,
		},
		{
			name: "nothing to add",
			opts: videoOptions{video: media.Video{Background: background, Output: "story.mp4"}},
			err:  media.ErrNothingToRender,
		},
		{
			name: "missing background",
			opts: videoOptions{video: media.Video{Background: background, Output: "story.mp4"}, subtitles: "story.srt"},
			err:  media.ErrInputMissing,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var stdout bytes.Buffer

			err := runVideo(context.Background(), &stdout, application, &testCase.opts)
			require.ErrorIs(t, err, testCase.err)
			assert.Empty(t, stdout.String())
		})
	}
}

func TestSubtitlesPathFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("out", "story.srt"), subtitlesPathFor(filepath.Join("out", "story.mp4")))
	assert.Equal(t, "story.srt", subtitlesPathFor("story"))
}

func TestFirstLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ffmpeg version 6.1", firstLine("ffmpeg version 6.1\nbuilt with gcc"))
	assert.Equal(t, "single", firstLine("single"))
}
