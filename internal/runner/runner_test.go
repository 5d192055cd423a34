package runner

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// shell returns a command that runs script through the platform shell.
func shell(t *testing.T, script string) Command {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	return Command{Path: path, Args: []string{"-c", script}}
}

// TestExecRunner_Success captures output and passes the environment through.
func TestExecRunner_Success(t *testing.T) {
	t.Parallel()

	cmd := shell(t, `printf "%s %s" "$PYTHONDONTWRITEBYTECODE" "$EXTRA"`)
	cmd.Env = []string{"EXTRA=value"}

	output, err := NewExecRunner().Run(context.Background(), cmd)
	require.NoError(t, err)
	require.Equal(t, "1 value", string(output))
}

// TestExecRunner_Failure reports the exit code and output tail.
func TestExecRunner_Failure(t *testing.T) {
	t.Parallel()

	_, err := NewExecRunner().Run(context.Background(), shell(t, "echo broken >&2; exit 3"))
	require.ErrorIs(t, err, ErrSubprocess)

	var runErr *Error
	require.True(t, errors.As(err, &runErr))
	require.Equal(t, 3, runErr.ExitCode)
	require.Equal(t, "broken", runErr.Output)
	require.Contains(t, err.Error(), "exit code 3")
}

// TestExecRunner_DiscardStdout keeps stderr while dropping stdout.
func TestExecRunner_DiscardStdout(t *testing.T) {
	t.Parallel()

	cmd := shell(t, "echo out; echo err >&2")
	cmd.DiscardStdout = true

	output, err := NewExecRunner().Run(context.Background(), cmd)
	require.NoError(t, err)
	require.Equal(t, "err\n", string(output))
}

// TestExecRunner_MissingExecutable wraps start failures.
func TestExecRunner_MissingExecutable(t *testing.T) {
	t.Parallel()

	_, err := NewExecRunner().Run(context.Background(), Command{Path: "/nonexistent/python"})
	require.ErrorIs(t, err, ErrSubprocess)
}
