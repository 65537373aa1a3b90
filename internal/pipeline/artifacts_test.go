package pipeline_test

import (
	"context"
	"strings"
	"testing"

	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/audio-pipeline/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{input: "sample.wav", want: "sample.wav"},
		{input: "../../etc/passwd.wav", want: "passwd.wav"},
		{input: `C:\Users\me\my song.mp3`, want: "my_song.mp3"},
		{input: "  héllo wörld .ogg", want: "hllo_wrld_.ogg"},
		{input: ".hidden.flac", want: "hidden.flac"},
		{input: "..", want: ""},
		{input: "", want: ""},
	}

	for _, testCase := range tests {
		assert.Equal(t, testCase.want, pipeline.SanitizeFilename(testCase.input), testCase.input)
	}
}

func TestIsAllowedExtension(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"a.wav", "a.MP3", "a.flac", "a.ogg", "a.m4a"} {
		assert.True(t, pipeline.IsAllowedExtension(name), name)
	}

	for _, name := range []string{"a.txt", "a.wav.exe", "wav", "a.", "a.aac"} {
		assert.False(t, pipeline.IsAllowedExtension(name), name)
	}
}

func TestIngest(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	orch := fx.orchestrator(t)

	artifact, failure := orch.Ingest(context.Background(), "../../secret/clip.wav", []byte("data"))
	require.Nil(t, failure)

	assert.Equal(t, "clip.wav", artifact.OriginalName)
	assert.True(t, strings.HasPrefix(artifact.Name, pipeline.UploadsPrefix))
	assert.True(t, strings.HasSuffix(artifact.Name, "_clip.wav"))

	other, failure := orch.Ingest(context.Background(), "clip.wav", []byte("data"))
	require.Nil(t, failure)
	assert.NotEqual(t, artifact.Name, other.Name)
}

func TestIngest_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{name: "disallowed extension", filename: "notes.txt", data: []byte("x")},
		{name: "no extension", filename: "audio", data: []byte("x")},
		{name: "empty file", filename: "clip.wav", data: nil},
		{name: "empty name", filename: "", data: []byte("x")},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fx := newFixture(t)
			orch := fx.orchestrator(t)

			_, failure := orch.Ingest(context.Background(), testCase.filename, testCase.data)
			require.NotNil(t, failure)
			assert.Equal(t, core.KindValidation, failure.Kind)
			assert.Zero(t, fx.store.uploads.Load())
		})
	}
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	orch := fx.orchestrator(t)
	ctx := context.Background()

	require.NoError(t, fx.store.Upload(ctx, "tts_abc.mp3", []byte("mp3")))
	require.NoError(t, fx.store.Upload(ctx, "empty.mp3", []byte{}))
	upload := fx.ingest(t, orch, "private.wav", []byte("secret"))

	data, failure := orch.Retrieve(ctx, "tts_abc.mp3")
	require.Nil(t, failure)
	assert.Equal(t, []byte("mp3"), data)

	data, failure = orch.Retrieve(ctx, "/audio_output/tts_abc.mp3")
	require.Nil(t, failure)
	assert.Equal(t, []byte("mp3"), data)

	tests := []struct {
		name string
		kind core.ErrorKind
	}{
		{name: "missing.mp3", kind: core.KindNotFound},
		{name: "empty.mp3", kind: core.KindNotFound},
		{name: upload.Name, kind: core.KindNotFound},
		{name: "../etc/passwd", kind: core.KindValidation},
		{name: "a/../../b", kind: core.KindValidation},
		{name: "/etc/passwd", kind: core.KindValidation},
		{name: "", kind: core.KindValidation},
	}

	for _, testCase := range tests {
		_, failure := orch.Retrieve(ctx, testCase.name)
		require.NotNil(t, failure, testCase.name)
		assert.Equal(t, testCase.kind, failure.Kind, testCase.name)
	}
}

func TestCatalogDiscovery(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	orch := fx.orchestrator(t)

	characters := orch.Characters()
	assert.Len(t, characters, 10)
	assert.Equal(t, "Warm, slow elderly woman", characters["grandma"])

	assert.Equal(t, map[string]string{"en": "English", "hi": "Hindi"}, orch.Languages())
}
