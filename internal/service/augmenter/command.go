package augmenter

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/logger"
	"github.com/oshokin/pybi-publisher/internal/runner"
)

// Options contains inputs for the standalone augmenter.
type Options struct {
	// Archive is the artifact to augment; its file name must follow the artifact naming scheme.
	Archive string
	// Output is where the augmented artifact is written.
	Output string
	// WorkDir is the parent of temporary directories.
	WorkDir string
}

// Run augments a single artifact.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "augmenter")

	identity, err := pybi.Parse(opts.Archive)
	if err != nil {
		return err
	}

	output, err := filepath.Abs(opts.Output)
	if err != nil {
		return fmt.Errorf("resolve output: %w", err)
	}

	ctx = logger.WithKV(ctx, "identity", identity.String())

	if err := New(runner.NewExecRunner(), opts.WorkDir).Augment(ctx, opts.Archive, output, identity); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Artifact augmented", "output", output)

	return nil
}
