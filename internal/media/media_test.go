package media_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/narrator/internal/media"
)

type runnerCall struct {
	name string
	args []string
	list string
}

// fakeRunner answers each call with the matching step; the last step is
// reused once the script runs out.
type fakeRunner struct {
	mutex sync.Mutex
	steps []func(ctx context.Context, args []string) ([]byte, error)
	calls []runnerCall
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mutex.Lock()
	position := len(f.calls)
	recorded := runnerCall{name: name, args: append([]string{}, args...)}

	for index, arg := range args {
		if arg == "-i" && index+1 < len(args) && filepath.Base(args[index+1]) == "concat_list.txt" {
			data, _ := os.ReadFile(args[index+1])
			recorded.list = string(data)
		}
	}

	f.calls = append(f.calls, recorded)
	step := f.steps[min(position, len(f.steps)-1)]
	f.mutex.Unlock()

	return step(ctx, args)
}

func writesOutput(_ context.Context, args []string) ([]byte, error) {
	return nil, os.WriteFile(args[len(args)-1], []byte("merged audio"), 0o600)
}

func exitsWith(stderr string) func(context.Context, []string) ([]byte, error) {
	return func(context.Context, []string) ([]byte, error) {
		return nil, &media.ExitError{Name: "ffmpeg", ExitCode: 1, Stderr: stderr}
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "media_test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

func writeSegments(t *testing.T, dir string, count int) []string {
	t.Helper()

	paths := make([]string, 0, count)

	for index := range count {
		path := filepath.Join(dir, "segment_000"+string(rune('0'+index))+".mp3")
		require.NoError(t, os.WriteFile(path, []byte("segment"), 0o600))
		paths = append(paths, path)
	}

	return paths
}

var ffmpeg = media.Command{Name: "ffmpeg", Args: []string{"-hide_banner", "-y"}}

func TestConcatenate_ZeroSegments(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){writesOutput}}
	concatenator := media.NewConcatenator(runner, ffmpeg, time.Second, newTestLogger(t))

	err := concatenator.Concatenate(context.Background(), nil, filepath.Join(t.TempDir(), "final_audio.mp3"))
	require.ErrorIs(t, err, media.ErrNoSegmentsToConcatenate)
	assert.Empty(t, runner.calls)
}

func TestConcatenate_SingleSegmentIsPromoted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	segments := writeSegments(t, dir, 1)
	output := filepath.Join(dir, "final_audio.mp3")

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){writesOutput}}
	concatenator := media.NewConcatenator(runner, ffmpeg, time.Second, newTestLogger(t))

	require.NoError(t, concatenator.Concatenate(context.Background(), segments, output))
	assert.Empty(t, runner.calls, "ffmpeg is not needed for one segment")
	assert.FileExists(t, output)
	assert.NoFileExists(t, segments[0])
}

func TestConcatenate_StreamCopy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	segments := writeSegments(t, dir, 3)
	output := filepath.Join(dir, "final_audio.mp3")

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){writesOutput}}
	concatenator := media.NewConcatenator(runner, ffmpeg, time.Second, newTestLogger(t))

	require.NoError(t, concatenator.Concatenate(context.Background(), segments, output))
	require.Len(t, runner.calls, 1)

	listPath := filepath.Join(dir, "concat_list.txt")
	assert.Equal(t, "ffmpeg", runner.calls[0].name)
	assert.Equal(t, []string{
		"-hide_banner", "-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy", output,
	}, runner.calls[0].args)

	expectedList := ""
	for _, segment := range segments {
		expectedList += "file '" + segment + "'\n"
	}

	assert.Equal(t, expectedList, runner.calls[0].list)
	assert.NoFileExists(t, listPath)
	assert.FileExists(t, output)
}

func TestConcatenate_ReencodesWhenStreamCopyFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	segments := writeSegments(t, dir, 2)
	output := filepath.Join(dir, "final_audio.ogg")

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){
		exitsWith("Non-monotonous DTS"),
		writesOutput,
	}}
	concatenator := media.NewConcatenator(runner, ffmpeg, time.Second, newTestLogger(t))

	require.NoError(t, concatenator.Concatenate(context.Background(), segments, output))
	require.Len(t, runner.calls, 2)

	retry := runner.calls[1].args
	assert.Equal(t, []string{"-c:a", "libopus", output}, retry[len(retry)-3:])
}

func TestConcatenate_FailureCarriesStderr(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	output := filepath.Join(dir, "final_audio.mp3")

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){
		exitsWith("Invalid data found when processing input"),
	}}
	concatenator := media.NewConcatenator(runner, ffmpeg, time.Second, newTestLogger(t))

	err := concatenator.Concatenate(context.Background(), writeSegments(t, dir, 2), output)
	require.ErrorIs(t, err, media.ErrConcatenationFailed)
	assert.Contains(t, err.Error(), "Invalid data found when processing input")
	assert.Len(t, runner.calls, 2)
}

func TestConcatenate_CleanExitWithoutOutputIsIndeterminate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	output := filepath.Join(dir, "final_audio.mp3")

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){
		func(context.Context, []string) ([]byte, error) { return nil, nil },
	}}
	concatenator := media.NewConcatenator(runner, ffmpeg, time.Second, newTestLogger(t))

	err := concatenator.Concatenate(context.Background(), writeSegments(t, dir, 2), output)
	require.ErrorIs(t, err, media.ErrIndeterminateCompletion)
}

func TestConcatenate_TimeoutIsIndeterminate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	output := filepath.Join(dir, "final_audio.mp3")

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){
		func(ctx context.Context, _ []string) ([]byte, error) {
			<-ctx.Done()

			return nil, ctx.Err()
		},
	}}
	concatenator := media.NewConcatenator(runner, ffmpeg, 20*time.Millisecond, newTestLogger(t))

	err := concatenator.Concatenate(context.Background(), writeSegments(t, dir, 2), output)
	require.ErrorIs(t, err, media.ErrIndeterminateCompletion)
	assert.Len(t, runner.calls, 1, "a timeout is not retried")
}

func TestConcatenate_CallerCancellation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){
		func(ctx context.Context, _ []string) ([]byte, error) {
			cancel()

			return nil, ctx.Err()
		},
	}}
	concatenator := media.NewConcatenator(runner, ffmpeg, time.Minute, newTestLogger(t))

	err := concatenator.Concatenate(ctx, writeSegments(t, dir, 2), filepath.Join(dir, "final_audio.mp3"))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, media.ErrIndeterminateCompletion)
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	command, err := media.ParseCommand(`/opt/ffmpeg/bin/ffmpeg -hide_banner -loglevel "error" -y`)
	require.NoError(t, err)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", command.Name)
	assert.Equal(t, []string{"-hide_banner", "-loglevel", "error", "-y"}, command.Args)
	assert.Equal(t, []string{"-hide_banner", "-loglevel", "error", "-y", "-i", "x"}, command.With("-i", "x"))

	_, err = media.ParseCommand("   ")
	require.ErrorIs(t, err, media.ErrCommandEmpty)

	_, err = media.ParseCommand(`ffmpeg "unterminated`)
	require.Error(t, err)
}

func TestProber_Duration(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){
		func(context.Context, []string) ([]byte, error) { return []byte("12.500000\n"), nil },
		func(context.Context, []string) ([]byte, error) { return []byte("N/A\n"), nil },
	}}
	prober := media.NewProber(runner, media.Command{Name: "ffprobe", Args: []string{"-v", "error"}})

	duration, err := prober.Duration(context.Background(), "final_audio.mp3")
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, duration)
	assert.Equal(t, []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"final_audio.mp3",
	}, runner.calls[0].args)

	_, err = prober.Duration(context.Background(), "broken.mp3")
	require.ErrorIs(t, err, media.ErrNoDuration)
}

func TestProcessor_Args(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){
		func(context.Context, []string) ([]byte, error) { return []byte("60\n"), nil },
	}}
	prober := media.NewProber(runner, media.Command{Name: "ffprobe"})
	processor := media.NewProcessor(runner, media.Command{Name: "ffmpeg", Args: []string{"-y"}}, prober, newTestLogger(t))

	args, err := processor.Args(context.Background(), "final_audio.mp3", "story.ogg",
		media.Effects{FadeOutSeconds: 2, Normalize: true})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"-y",
		"-i", "final_audio.mp3",
		"-af", "afade=t=out:st=58:d=2,loudnorm",
		"-c:a", "libopus", "story.ogg",
	}, args)

	_, err = processor.Args(context.Background(), "final_audio.mp3", "story.mp3", media.Effects{})
	require.ErrorIs(t, err, media.ErrNoEffects)
}

func TestProcessor_Apply(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	audio := filepath.Join(dir, "final_audio.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("audio"), 0o600))

	effects := media.Effects{Volume: 1.5, FadeInSeconds: 1}

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){writesOutput}}
	processor := media.NewProcessor(runner, media.Command{Name: "ffmpeg"}, nil, newTestLogger(t))

	output := filepath.Join(dir, "mastered.mp3")
	require.NoError(t, processor.Apply(context.Background(), audio, output, effects))
	assert.FileExists(t, output)
	assert.Contains(t, runner.calls[0].args, "volume=1.5,afade=t=in:st=0:d=1")

	err := processor.Apply(context.Background(), filepath.Join(dir, "missing.mp3"), output, effects)
	require.ErrorIs(t, err, media.ErrInputMissing)

	err = processor.Apply(context.Background(), audio, audio, effects)
	require.ErrorIs(t, err, media.ErrSameInOut)

	err = processor.Apply(context.Background(), audio, output, media.Effects{Volume: -2})
	require.ErrorIs(t, err, media.ErrInvalidEffects)

	failing := media.NewProcessor(&fakeRunner{steps: []func(context.Context, []string) ([]byte, error){
		exitsWith("Invalid data found when processing input"),
	}}, media.Command{Name: "ffmpeg"}, nil, newTestLogger(t))

	err = failing.Apply(context.Background(), audio, output, effects)
	require.ErrorIs(t, err, media.ErrEffectsFailed)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestRenderer_Args(t *testing.T) {
	t.Parallel()

	renderer := media.NewRenderer(&fakeRunner{}, media.Command{Name: "ffmpeg", Args: []string{"-y"}}, newTestLogger(t))

	looped := renderer.Args(media.Video{
		Background: "beach.mp4",
		Audio:      "final_audio.mp3",
		Subtitles:  "/srv/stories/c:drive/story.srt",
		Output:     "story.mp4",
	})
	assert.Equal(t, []string{
		"-y",
		"-stream_loop", "-1", "-i", "beach.mp4", "-i", "final_audio.mp3",
		"-vf", `subtitles=/srv/stories/c\:drive/story.srt`,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-shortest",
		"story.mp4",
	}, looped)

	burned := renderer.Args(media.Video{Background: "talk.mp4", Subtitles: "talk.srt", Output: "talk_subtitled.mp4"})
	assert.Equal(t, []string{
		"-y", "-i", "talk.mp4", "-vf", "subtitles=talk.srt", "-c:a", "copy", "talk_subtitled.mp4",
	}, burned)
}

func TestRenderer_Render(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	background := filepath.Join(dir, "beach.mp4")
	audio := filepath.Join(dir, "final_audio.mp3")
	subtitles := filepath.Join(dir, "story.srt")

	for _, path := range []string{background, audio, subtitles} {
		require.NoError(t, os.WriteFile(path, []byte("media"), 0o600))
	}

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){writesOutput}}
	renderer := media.NewRenderer(runner, media.Command{Name: "ffmpeg"}, newTestLogger(t))

	output := filepath.Join(dir, "story.mp4")
	video := media.Video{Background: background, Audio: audio, Subtitles: subtitles, Output: output}

	require.NoError(t, renderer.Render(context.Background(), video))
	assert.FileExists(t, output)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "ffmpeg", runner.calls[0].name)
	assert.Contains(t, runner.calls[0].args, "-stream_loop")

	failing := media.NewRenderer(&fakeRunner{steps: []func(context.Context, []string) ([]byte, error){
		exitsWith("No such filter: 'subtitles'"),
	}}, media.Command{Name: "ffmpeg"}, newTestLogger(t))

	err := failing.Render(context.Background(), video)
	require.ErrorIs(t, err, media.ErrRenderFailed)
	assert.Contains(t, err.Error(), "No such filter")
}

func TestRenderer_RejectsBadInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	background := filepath.Join(dir, "beach.mp4")
	require.NoError(t, os.WriteFile(background, []byte("media"), 0o600))

	runner := &fakeRunner{steps: []func(context.Context, []string) ([]byte, error){writesOutput}}
	renderer := media.NewRenderer(runner, media.Command{Name: "ffmpeg"}, newTestLogger(t))
	output := filepath.Join(dir, "story.mp4")

	tests := []struct {
		name  string
		video media.Video
		err   error
	}{
		{name: "nothing to add", video: media.Video{Background: background, Output: output}, err: media.ErrNothingToRender},
		{
			name:  "missing audio",
			video: media.Video{Background: background, Audio: filepath.Join(dir, "missing.mp3"), Output: output},
			err:   media.ErrInputMissing,
		},
		{
			name:  "missing background",
			video: media.Video{Audio: background, Output: output},
			err:   media.ErrInputMissing,
		},
		{
			name:  "overwrites background",
			video: media.Video{Background: background, Subtitles: background, Output: background},
			err:   media.ErrSameInOut,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			require.ErrorIs(t, renderer.Render(context.Background(), testCase.video), testCase.err)
		})
	}
}

func TestEffects(t *testing.T) {
	t.Parallel()

	assert.Empty(t, media.Effects{}.Filter(time.Minute))
	assert.Empty(t, media.Effects{Volume: 1}.Filter(time.Minute))

	effects := media.Effects{Volume: 1.5, FadeInSeconds: 1, FadeOutSeconds: 3, HighPass: 80, LowPass: 12000}
	require.NoError(t, effects.Validate())
	assert.Equal(t, "volume=1.5,afade=t=in:st=0:d=1,afade=t=out:st=7:d=3,highpass=f=80,lowpass=f=12000",
		effects.Filter(10*time.Second))
	assert.NotContains(t, effects.Filter(0), "t=out", "fade out needs a known duration")

	invalid := []media.Effects{
		{Volume: 11},
		{FadeInSeconds: -1},
		{HighPass: 30000},
		{LowPass: -5},
		{HighPass: 5000, LowPass: 1000},
	}
	for _, candidate := range invalid {
		require.ErrorIs(t, candidate.Validate(), media.ErrInvalidEffects)
	}
}

func TestExecRunner(t *testing.T) {
	t.Parallel()

	_, lookErr := exec.LookPath("sh")
	if lookErr != nil {
		t.Skip("Skipping test: sh not available")
	}

	runner := media.ExecRunner{}

	stdout, err := runner.Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(stdout))

	_, err = runner.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")

	var exitErr *media.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, "boom", exitErr.Stderr)
}
