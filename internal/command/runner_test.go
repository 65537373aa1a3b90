package command_test

import (
	"context"
	"os/exec"
	"testing"

	"github.com/book-expert/audio-pipeline/internal/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()

	_, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh is not available")
	}
}

func TestExecRunner_CapturesOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)

	result, err := command.ExecRunner{}.Run(context.Background(), "sh", "-c", "echo out; echo err 1>&2")
	require.NoError(t, err)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
	assert.Equal(t, 0, result.ExitCode)
}

func TestExecRunner_ExitCode(t *testing.T) {
	t.Parallel()
	requireShell(t)

	result, err := command.ExecRunner{}.Run(context.Background(), "sh", "-c", "echo broken 1>&2; exit 3")
	require.Error(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, err.Error(), "broken")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	t.Parallel()

	result, err := command.ExecRunner{}.Run(context.Background(), "definitely-not-an-audio-tool")
	require.Error(t, err)
	assert.Equal(t, -1, result.ExitCode)
}
