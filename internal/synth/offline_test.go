package synth_test

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/book-expert/audio-pipeline/internal/command"
	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/audio-pipeline/internal/synth"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockEspeak = errors.New("mock espeak-ng: voice not found")

type invocation struct {
	name string
	args []string
}

// mockRunner fakes espeak-ng and ffmpeg by writing files where they would.
type mockRunner struct {
	espeakShouldFail bool
	ffmpegShouldFail bool
	mp3              []byte
	calls            []invocation
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) (command.Result, error) {
	m.calls = append(m.calls, invocation{name: name, args: args})

	switch name {
	case "espeak-ng":
		if m.espeakShouldFail {
			return command.Result{ExitCode: 1}, errMockEspeak
		}

		wavIdx := slices.Index(args, "-w")

		return command.Result{}, os.WriteFile(args[wavIdx+1], []byte("RIFF"), 0o600)
	default:
		if m.ffmpegShouldFail {
			return command.Result{ExitCode: 1}, errMockEspeak
		}

		return command.Result{}, os.WriteFile(args[len(args)-1], m.mp3, 0o600)
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "synth-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func grandma() core.VoiceProfile {
	return core.VoiceProfile{
		Key:         "grandma",
		Description: "Warm, slow elderly woman",
		Offline:     core.OfflineVoice{Rate: 130, Voice: "en-us+f4"},
		Online:      core.OnlineVoice{Voice: "shimmer", Speed: 0.85},
	}
}

func TestOfflineEngine_Synthesize(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{mp3: []byte("ID3 mp3 data")}
	engine := synth.NewOfflineEngine("espeak-ng", "ffmpeg", runner, newTestLogger(t))

	audio, err := engine.Synthesize(context.Background(), core.SynthesisRequest{
		Text:    "Hello  there",
		Profile: grandma(),
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3 mp3 data"), audio)

	require.Len(t, runner.calls, 2)

	espeak := runner.calls[0]
	assert.Equal(t, "espeak-ng", espeak.name)
	assert.Contains(t, espeak.args, "en-us+f4")
	assert.Contains(t, espeak.args, "130")
	assert.Equal(t, "Hello there.", espeak.args[len(espeak.args)-1])

	ffmpeg := runner.calls[1]
	assert.Equal(t, "ffmpeg", ffmpeg.name)
	assert.Contains(t, ffmpeg.args, "libmp3lame")
}

func TestOfflineEngine_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		runner  *mockRunner
		text    string
		wantErr error
	}{
		{name: "empty text", runner: &mockRunner{}, text: "   ", wantErr: synth.ErrTextEmpty},
		{name: "espeak fails", runner: &mockRunner{espeakShouldFail: true}, text: "hi", wantErr: errMockEspeak},
		{name: "encoder fails", runner: &mockRunner{ffmpegShouldFail: true}, text: "hi", wantErr: errMockEspeak},
		{name: "empty mp3", runner: &mockRunner{mp3: []byte{}}, text: "hi", wantErr: synth.ErrEmptyAudio},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			engine := synth.NewOfflineEngine("espeak-ng", "ffmpeg", testCase.runner, newTestLogger(t))

			_, err := engine.Synthesize(context.Background(), core.SynthesisRequest{Text: testCase.text, Profile: grandma()})
			require.ErrorIs(t, err, synth.ErrSynthesis)
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{input: "hello", want: "hello."},
		{input: "  spaced \n\t out  ", want: "spaced out."},
		{input: "Done!", want: "Done!"},
		{input: "Really?", want: "Really?"},
		{input: "A list;", want: "A list."},
		{input: "“Quoted” — dash…", want: `"Quoted" - dash...`},
		{input: "   ", want: ""},
	}

	for _, testCase := range tests {
		assert.Equal(t, testCase.want, synth.NormalizeText(testCase.input), testCase.input)
	}
}
