package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/oshokin/pybi-publisher/internal/logger"
)

// ErrSubprocess is returned when a command cannot start or exits non-zero.
var ErrSubprocess = errors.New("subprocess failed")

// outputTail bounds how much captured output is attached to an error.
const outputTail = 2048

// Command describes one subprocess invocation.
type Command struct {
	// Path is the executable to run.
	Path string
	// Args are passed after the executable.
	Args []string
	// Dir is the working directory, the current one when empty.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// DiscardStdout drops standard output instead of capturing it.
	DiscardStdout bool
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, cmd Command) ([]byte, error)

// Run calls f.
func (f Func) Run(ctx context.Context, cmd Command) ([]byte, error) {
	return f(ctx, cmd)
}

// ExecRunner runs commands as real processes.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts cmd, waits for it and returns its combined output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	process := exec.CommandContext(ctx, cmd.Path, cmd.Args...) //nolint:gosec // Paths come from unpacked artifacts.
	process.Dir = cmd.Dir
	process.Env = append(os.Environ(), "PYTHONDONTWRITEBYTECODE=1")
	process.Env = append(process.Env, cmd.Env...)

	var output bytes.Buffer

	process.Stderr = &output
	process.Stdout = &output

	if cmd.DiscardStdout {
		process.Stdout = io.Discard
	}

	logger.DebugKV(ctx, "Running command", "command", cmd.String(), "dir", cmd.Dir)

	if err := process.Run(); err != nil {
		return output.Bytes(), &Error{
			Command:  cmd.String(),
			ExitCode: exitCode(err),
			Output:   tail(output.Bytes()),
			Err:      err,
		}
	}

	return output.Bytes(), nil
}

// Error describes a failed command.
type Error struct {
	// Command is the rendered command line.
	Command string
	// ExitCode is -1 when the process did not exit normally.
	ExitCode int
	// Output is the end of the captured output.
	Output string
	// Err is the underlying exec error.
	Err error
}

func (e *Error) Error() string {
	message := fmt.Sprintf("%s: %s (exit code %d)", ErrSubprocess, e.Command, e.ExitCode)
	if e.Output != "" {
		message += ": " + e.Output
	}

	return message
}

// Unwrap exposes both ErrSubprocess and the exec error.
func (e *Error) Unwrap() []error {
	return []error{ErrSubprocess, e.Err}
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

func tail(output []byte) string {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) > outputTail {
		trimmed = trimmed[len(trimmed)-outputTail:]
	}

	return string(trimmed)
}
