package ledger

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/logger"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// DefaultFileMode is the mode of published artifacts.
	DefaultFileMode os.FileMode = 0o644

	// publishChecksum guards the copy into the destination directory.
	publishChecksum = crypto.SHA512

	dirMode os.FileMode = 0o755
)

// DirectoryLedger publishes artifacts as files in a directory.
type DirectoryLedger struct {
	// dir holds the published artifacts.
	dir string
	// extension selects which files count as artifacts.
	extension string
	// apply writes verified contents to a target path.
	apply func(update io.Reader, opts goupdate.Options) error
}

// NewDirectoryLedger returns a ledger over dir for files ending in extension.
func NewDirectoryLedger(dir, extension string) *DirectoryLedger {
	if extension == "" {
		extension = pybi.DefaultExtension
	}

	return &DirectoryLedger{dir: filepath.Clean(dir), extension: extension, apply: goupdate.Apply}
}

// String implements Ledger.
func (l *DirectoryLedger) String() string {
	return "directory " + l.dir
}

// Snapshot lists artifacts in the directory.
// Dotfiles are left out; a missing directory is empty.
func (l *DirectoryLedger) Snapshot(ctx context.Context) (Set, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewSet(), nil
		}

		return Set{}, fmt.Errorf("list %s: %w", l.dir, err)
	}

	published := NewSet()

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, l.extension) {
			continue
		}

		identity, err := pybi.Parse(name)
		if err != nil {
			return Set{}, fmt.Errorf("published artifact %s: %w", name, err)
		}

		published.Add(identity)
	}

	logger.DebugKV(ctx, "Directory snapshot", "dir", l.dir, "count", published.Len())

	return published, nil
}

// Publish copies the staged artifact into the directory atomically.
func (l *DirectoryLedger) Publish(ctx context.Context, identity pybi.Identity, stagedPath string) error {
	if err := l.publish(ctx, identity, stagedPath); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublication, identity, err)
	}

	return nil
}

func (l *DirectoryLedger) publish(ctx context.Context, identity pybi.Identity, stagedPath string) error {
	data, err := os.ReadFile(filepath.Clean(stagedPath))
	if err != nil {
		return err
	}

	digest := publishChecksum.New()
	_, _ = digest.Write(data)

	if err = os.MkdirAll(l.dir, dirMode); err != nil {
		return err
	}

	name := identity.Filename(l.extension)
	target := filepath.Join(l.dir, name)
	// Hidden until renamed, so the final name only ever holds a complete artifact.
	staging := filepath.Join(l.dir, "."+name+".staging")

	// The updater renames the current target aside, so one has to exist.
	file, err := os.Create(staging) //nolint:gosec // Staging name is derived from a parsed identity.
	if err != nil {
		return err
	}

	_ = file.Close()

	logger.DebugKV(ctx, "Applying artifact", "target", target, "staging", staging)

	err = l.apply(bytes.NewReader(data), goupdate.Options{
		TargetPath: staging,
		TargetMode: DefaultFileMode,
		Checksum:   digest.Sum(nil),
		Hash:       publishChecksum,
	})
	if err != nil {
		_ = os.Remove(staging)
		return err
	}

	if err = os.Rename(staging, target); err != nil {
		_ = os.Remove(staging)
		return err
	}

	return nil
}
