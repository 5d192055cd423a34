package augmenter

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pybi-publisher/internal/archive"
	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/runner"
)

// packTree builds an artifact holding only an interpreter placeholder.
func packTree(t *testing.T, identity pybi.Identity) string {
	t.Helper()

	tree := t.TempDir()
	python := identity.InterpreterPath(tree)
	require.NoError(t, os.MkdirAll(filepath.Dir(python), 0o755))
	require.NoError(t, os.WriteFile(python, []byte("interpreter"), 0o755))

	archivePath := filepath.Join(t.TempDir(), identity.Filename(pybi.DefaultExtension))
	require.NoError(t, archive.Create(context.Background(), tree, archivePath))

	return archivePath
}

// fakeEnsurepip creates entry point name in the binary directory when ensurepip runs.
func fakeEnsurepip(t *testing.T, identity pybi.Identity, name string) runner.Func {
	t.Helper()

	return func(_ context.Context, cmd runner.Command) ([]byte, error) {
		require.Equal(t, []string{"-m", "ensurepip"}, cmd.Args)
		require.True(t, cmd.DiscardStdout)
		require.Equal(t, identity.InterpreterPath(cmd.Dir), cmd.Path)

		if name != "" {
			pip := identity.EntryPointPath(cmd.Dir, name)
			require.NoError(t, os.WriteFile(pip, []byte("pip"), 0o755))
		}

		return nil, nil
	}
}

// TestAugment covers every binary directory layout.
func TestAugment(t *testing.T) {
	t.Parallel()

	for _, name := range []string{
		"cpython-3.9.2-manylinux_2_17_x86_64.pybi",
		"cpython-3.10.1-macosx_11_0_universal2.pybi",
		"cpython-3.9.2-win_amd64.pybi",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			identity, err := pybi.Parse(name)
			require.NoError(t, err)

			src := packTree(t, identity)
			dst := filepath.Join(t.TempDir(), name)

			require.NoError(t, New(fakeEnsurepip(t, identity, "pip3"), t.TempDir()).Augment(context.Background(), src, dst, identity))

			unpacked := t.TempDir()
			require.NoError(t, archive.Extract(context.Background(), dst, unpacked))
			require.FileExists(t, identity.EntryPointPath(unpacked, "pip3"))
			require.FileExists(t, identity.InterpreterPath(unpacked))
		})
	}
}

// TestAugment_Failures covers a failing bootstrap and a bootstrap without an entry point.
func TestAugment_Failures(t *testing.T) {
	t.Parallel()

	identity, err := pybi.Parse("cpython-3.9.2-manylinux_2_17_x86_64.pybi")
	require.NoError(t, err)

	src := packTree(t, identity)
	workDir := t.TempDir()

	failing := runner.Func(func(context.Context, runner.Command) ([]byte, error) {
		return nil, runner.ErrSubprocess
	})

	dst := filepath.Join(t.TempDir(), "out.pybi")
	err = New(failing, workDir).Augment(context.Background(), src, dst, identity)
	require.ErrorIs(t, err, runner.ErrSubprocess)
	require.NoFileExists(t, dst)

	err = New(fakeEnsurepip(t, identity, ""), workDir).Augment(context.Background(), src, dst, identity)
	require.ErrorIs(t, err, ErrInstallerMissing)
	require.NoFileExists(t, dst)

	// Work directories are released on every path.
	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	require.False(t, slices.ContainsFunc(entries, func(e os.DirEntry) bool { return e.IsDir() }))
}
