package validator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/pybi-publisher/internal/archive"
	"github.com/oshokin/pybi-publisher/internal/capability"
	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/logger"
	"github.com/oshokin/pybi-publisher/internal/runner"
)

// ErrCapability is returned when a capability check fails.
var ErrCapability = errors.New("capability check failed")

// CheckError names the failing capability.
type CheckError struct {
	// Capability is the name of the failed check.
	Capability string
	// Err is the underlying failure.
	Err error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s %q: %v", ErrCapability, e.Capability, e.Err)
}

// Unwrap exposes both ErrCapability and the cause.
func (e *CheckError) Unwrap() []error {
	return []error{ErrCapability, e.Err}
}

// Validator runs capability checks against artifacts.
type Validator struct {
	// runner starts interpreter processes.
	runner runner.Runner
	// engine selects the checks for an identity.
	engine *capability.Engine
	// workDir is the parent of scoped temporary directories.
	workDir string
}

// New returns a Validator.
func New(r runner.Runner, engine *capability.Engine, workDir string) *Validator {
	return &Validator{runner: r, engine: engine, workDir: workDir}
}

// Validate unpacks the artifact at archivePath and runs every applicable check.
func (v *Validator) Validate(ctx context.Context, archivePath string, identity pybi.Identity) error {
	capabilities, err := v.engine.ApplicableCapabilities(identity)
	if err != nil {
		return err
	}

	tmp, err := os.MkdirTemp(v.workDir, "validate-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	defer func() {
		if removeErr := os.RemoveAll(tmp); removeErr != nil {
			logger.WarnKV(ctx, "Failed to remove work dir", "dir", tmp, "error", removeErr)
		}
	}()

	tree := filepath.Join(tmp, "tree")
	if err := archive.Extract(ctx, archivePath, tree); err != nil {
		return err
	}

	s := &session{
		runner:   v.runner,
		identity: identity,
		tree:     tree,
		scratch:  tmp,
		python:   identity.InterpreterPath(tree),
	}

	output, err := s.run(ctx, s.python, "--version", "--version")
	if err != nil {
		return &CheckError{Capability: "version", Err: err}
	}

	logger.DebugKV(ctx, "Interpreter version", "identity", identity.String(), "version", strings.TrimSpace(string(output)))
	logger.DebugKV(ctx, "Running capability checks", "identity", identity.String(),
		"capabilities", strings.Join(capability.Names(capabilities), ", "))

	for i, c := range capabilities {
		if err := s.check(ctx, i, c); err != nil {
			return &CheckError{Capability: c.Name, Err: err}
		}
	}

	return nil
}

// session holds the state of one validation.
type session struct {
	runner   runner.Runner
	identity pybi.Identity
	tree     string
	scratch  string
	python   string
}

func (s *session) check(ctx context.Context, index int, c capability.Capability) error {
	switch c.Kind {
	case capability.KindImport:
		_, err := s.run(ctx, s.python, "-c", "import "+c.Module)
		return err
	case capability.KindVenv:
		venvPython, err := s.createVenv(ctx, index)
		if err != nil {
			return err
		}

		_, err = s.run(ctx, venvPython, "-c", "import sys")

		return err
	case capability.KindPackage:
		venvPython, err := s.createVenv(ctx, index)
		if err != nil {
			return err
		}

		if _, err := s.run(ctx, venvPython, "-m", "pip", "install", c.Package); err != nil {
			return err
		}

		entryPoint := filepath.Join(filepath.Dir(venvPython), s.identity.ExecutableName(c.EntryPoint))
		_, err = s.run(ctx, entryPoint, "--help")

		return err
	default:
		return fmt.Errorf("unsupported kind %q", c.Kind)
	}
}

// createVenv builds a fresh environment and returns its interpreter.
func (s *session) createVenv(ctx context.Context, index int) (string, error) {
	dir := filepath.Join(s.scratch, fmt.Sprintf("venv-%d", index))
	if _, err := s.run(ctx, s.python, "-m", "venv", dir); err != nil {
		return "", err
	}

	return VenvInterpreter(s.identity, dir), nil
}

func (s *session) run(ctx context.Context, path string, args ...string) ([]byte, error) {
	return s.runner.Run(ctx, runner.Command{Path: path, Args: args, Dir: s.tree})
}

// VenvInterpreter returns the interpreter of a virtual environment created at dir.
// Environments use Scripts on Windows and bin elsewhere, framework builds included.
func VenvInterpreter(identity pybi.Identity, dir string) string {
	binDir := "bin"
	if identity.IsWindows() {
		binDir = "Scripts"
	}

	return filepath.Join(dir, binDir, identity.ExecutableName("python"))
}
