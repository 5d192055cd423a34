package validator

import (
	"context"
	"strings"

	"github.com/oshokin/pybi-publisher/internal/capability"
	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/logger"
	"github.com/oshokin/pybi-publisher/internal/runner"
)

// Options contains inputs for the standalone spot check.
type Options struct {
	// Archive is the artifact to check; its file name must follow the artifact naming scheme.
	Archive string
	// CapabilitiesFile overrides the embedded rule table.
	CapabilitiesFile string
	// WorkDir is the parent of temporary directories.
	WorkDir string
}

// Run spot-checks a single artifact.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "validator")

	identity, err := pybi.Parse(opts.Archive)
	if err != nil {
		return err
	}

	engine, err := capability.Load(opts.CapabilitiesFile)
	if err != nil {
		return err
	}

	capabilities, err := engine.ApplicableCapabilities(identity)
	if err != nil {
		return err
	}

	ctx = logger.WithKV(ctx, "identity", identity.String())
	logger.InfoKV(ctx, "Spot checking", "capabilities", strings.Join(capability.Names(capabilities), ", "))

	if err := New(runner.NewExecRunner(), engine, opts.WorkDir).Validate(ctx, opts.Archive, identity); err != nil {
		return err
	}

	logger.Info(ctx, "All capability checks passed")

	return nil
}
