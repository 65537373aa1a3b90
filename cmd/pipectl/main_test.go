package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/audio-pipeline/internal/presenter"
	"github.com/book-expert/audio-pipeline/internal/worker"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrefix = "pipectl.test"

	pagedArtifact = "/audio_output/clone_me_abc.wav"
	pageLength    = 4
)

// fakeService answers on the service subjects with canned replies.
type fakeService struct {
	mu          sync.Mutex
	lastRequest worker.RunRequest
	runFailure  *core.Failure
}

func (f *fakeService) request() worker.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.lastRequest
}

func startFakeService(t *testing.T, service *fakeService) string {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	server := test.RunServer(&opts)
	t.Cleanup(server.Shutdown)

	natsConnection, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	subjects := subjectsFor(testPrefix)

	respond := func(msg *nats.Msg, payload any) {
		data, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			t.Errorf("failed to marshal fake reply: %v", marshalErr)

			return
		}

		_ = msg.Respond(data)
	}

	_, err = natsConnection.Subscribe(subjects.Run, func(msg *nats.Msg) {
		var request worker.RunRequest
		_ = json.Unmarshal(msg.Data, &request)

		service.mu.Lock()
		service.lastRequest = request
		failure := service.runFailure
		service.mu.Unlock()

		if failure != nil {
			respond(msg, worker.RunReply{Header: request.Header, Response: presenter.PresentFailure(failure)})

			return
		}

		respond(msg, worker.RunReply{Header: request.Header, Response: presenter.Success(map[string]string{
			core.OutputAudioReference: "/audio_output/tts_abc.mp3",
		})})
	})
	require.NoError(t, err)

	_, err = natsConnection.Subscribe(subjects.Characters, func(msg *nats.Msg) {
		respond(msg, presenter.Success(map[string]string{"robot": "Flat mechanical monotone"}))
	})
	require.NoError(t, err)

	_, err = natsConnection.Subscribe(subjects.Artifact, func(msg *nats.Msg) {
		var request worker.ArtifactRequest
		_ = json.Unmarshal(msg.Data, &request)

		if request.Name == "/audio_output/tts_abc.mp3" {
			_ = msg.Respond([]byte("mp3 bytes"))

			return
		}

		if request.Name == pagedArtifact {
			content := []byte("RIFF paged wav bytes")
			end := min(request.Offset+pageLength, len(content))
			reply := nats.NewMsg(msg.Reply)
			reply.Header.Set(worker.HeaderArtifactSize, strconv.Itoa(len(content)))
			reply.Header.Set(worker.HeaderArtifactOffset, strconv.Itoa(request.Offset))
			reply.Data = content[request.Offset:end]
			_ = msg.RespondMsg(reply)

			return
		}

		body, _ := json.Marshal(presenter.PresentFailure(core.NewFailure(core.KindNotFound, "artifact not found")))
		reply := nats.NewMsg(msg.Reply)
		reply.Header.Set(worker.HeaderPipelineError, string(core.KindNotFound))
		reply.Data = body
		_ = msg.RespondMsg(reply)
	})
	require.NoError(t, err)

	require.NoError(t, natsConnection.Flush())

	return server.ClientURL()
}

func execute(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--nats-url", url, "--subject-prefix", testPrefix, "--user", "tester"}, args...))

	err := cmd.Execute()

	return out.String(), err
}

func TestTTSCommand(t *testing.T) {
	t.Parallel()

	service := &fakeService{}
	url := startFakeService(t, service)

	output, err := execute(t, url, "tts", "--text", "Hello there", "--character", "robot", "--engine", "online")
	require.NoError(t, err)

	var reply worker.RunReply
	require.NoError(t, json.Unmarshal([]byte(output), &reply))
	assert.True(t, reply.Success)
	assert.Equal(t, "/audio_output/tts_abc.mp3", reply.Data[core.OutputAudioReference])

	request := service.request()
	assert.Equal(t, "tts", request.Mode)
	assert.Equal(t, "Hello there", request.Text)
	assert.Equal(t, "robot", request.CharacterKey)
	assert.Equal(t, "online", request.Engine)
	assert.Equal(t, "tester", request.Header.UserID)
	assert.NotEmpty(t, request.Header.WorkflowID)
}

func TestUploadCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		wantMode string
	}{
		{name: "denoise", args: []string{"denoise"}, wantMode: "denoise"},
		{name: "translate", args: []string{"translate", "--from", "es", "--to", "fr", "--voice", "3"}, wantMode: "translate"},
		{name: "clone", args: []string{"clone", "--name", "me"}, wantMode: "clone"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			service := &fakeService{}
			url := startFakeService(t, service)

			audioPath := filepath.Join(t.TempDir(), "speech.wav")
			require.NoError(t, os.WriteFile(audioPath, []byte("RIFF"), 0o600))

			_, err := execute(t, url, append(testCase.args, audioPath)...)
			require.NoError(t, err)

			request := service.request()
			assert.Equal(t, testCase.wantMode, request.Mode)
			require.NotNil(t, request.Upload)
			assert.Equal(t, "speech.wav", request.Upload.Filename)
			assert.Equal(t, []byte("RIFF"), request.Upload.Data)

			if testCase.wantMode == "translate" {
				require.NotNil(t, request.VoiceOption)
				assert.Equal(t, 3, *request.VoiceOption)
				assert.Equal(t, "fr", request.TargetLang)
			}
		})
	}
}

func TestRunFailureIsReturned(t *testing.T) {
	t.Parallel()

	service := &fakeService{runFailure: core.NewFailure(core.KindServiceUnavailable, "voice cloning model is not loaded")}
	url := startFakeService(t, service)

	audioPath := filepath.Join(t.TempDir(), "sample.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFF"), 0o600))

	output, err := execute(t, url, "clone", audioPath)
	require.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "ServiceUnavailable")
	assert.Contains(t, output, "voice cloning model is not loaded")
}

func TestArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "tts without text", args: []string{"tts"}},
		{name: "denoise without file", args: []string{"denoise"}},
		{name: "denoise with missing file", args: []string{"denoise", "/nonexistent/clip.wav"}},
		{name: "fetch without reference", args: []string{"fetch"}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := execute(t, "nats://127.0.0.1:1", testCase.args...)
			require.Error(t, err)
		})
	}
}

func TestCharactersCommand(t *testing.T) {
	t.Parallel()

	url := startFakeService(t, &fakeService{})

	output, err := execute(t, url, "characters")
	require.NoError(t, err)
	assert.JSONEq(t, `{"robot": "Flat mechanical monotone"}`, output)
}

func TestFetchCommand(t *testing.T) {
	t.Parallel()

	url := startFakeService(t, &fakeService{})
	target := filepath.Join(t.TempDir(), "out.mp3")

	_, err := execute(t, url, "fetch", "/audio_output/tts_abc.mp3", "-o", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3 bytes"), data)

	_, err = execute(t, url, "fetch", "/audio_output/missing.mp3", "-o", target)
	require.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "NotFound")
}

func TestFetchCommand_JoinsPages(t *testing.T) {
	t.Parallel()

	url := startFakeService(t, &fakeService{})
	target := filepath.Join(t.TempDir(), "clone.wav")

	_, err := execute(t, url, "fetch", pagedArtifact, "-o", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF paged wav bytes"), data)
}
