package augmenter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/pybi-publisher/internal/archive"
	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/logger"
	"github.com/oshokin/pybi-publisher/internal/runner"
)

// ErrInstallerMissing is returned when ensurepip succeeds but leaves no pip entry point behind.
var ErrInstallerMissing = errors.New("pip entry point missing after ensurepip")

// installerNames are the entry points ensurepip may create, in lookup order.
var installerNames = []string{"pip", "pip3"}

// Augmenter installs pip into unpacked artifacts.
type Augmenter struct {
	// runner starts the artifact's interpreter.
	runner runner.Runner
	// workDir is the parent of scoped temporary directories, the system default when empty.
	workDir string
}

// New returns an Augmenter that runs subprocesses through r.
func New(r runner.Runner, workDir string) *Augmenter {
	return &Augmenter{runner: r, workDir: workDir}
}

// Augment reads the artifact at src and writes the pip-equipped artifact to dst.
func (a *Augmenter) Augment(ctx context.Context, src, dst string, identity pybi.Identity) error {
	tmp, err := os.MkdirTemp(a.workDir, "augment-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	defer func() {
		if removeErr := os.RemoveAll(tmp); removeErr != nil {
			logger.WarnKV(ctx, "Failed to remove work dir", "dir", tmp, "error", removeErr)
		}
	}()

	tree := filepath.Join(tmp, "tree")
	if err := archive.Extract(ctx, src, tree); err != nil {
		return err
	}

	logger.DebugKV(ctx, "Bootstrapping pip", "identity", identity.String())

	_, err = a.runner.Run(ctx, runner.Command{
		Path:          identity.InterpreterPath(tree),
		Args:          []string{"-m", "ensurepip"},
		Dir:           tree,
		DiscardStdout: true,
	})
	if err != nil {
		return fmt.Errorf("ensurepip: %w", err)
	}

	installer, err := findInstaller(tree, identity)
	if err != nil {
		return err
	}

	logger.DebugKV(ctx, "Installer ready", "identity", identity.String(), "entry_point", installer)

	if err := archive.Create(ctx, tree, dst); err != nil {
		return fmt.Errorf("repack: %w", err)
	}

	return nil
}

// findInstaller returns the first pip entry point present in the binary directory.
func findInstaller(tree string, identity pybi.Identity) (string, error) {
	for _, name := range installerNames {
		path := identity.EntryPointPath(tree, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%s: %w", identity.BinaryDir(), ErrInstallerMissing)
}
