package builder

import (
	"fmt"

	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
)

// Phase is a state of the per-artifact pipeline.
type Phase string

const (
	// PhaseDiscovered is the state before any work.
	PhaseDiscovered Phase = "discovered"
	// PhaseDownloading fetches the artifact.
	PhaseDownloading Phase = "downloading"
	// PhaseHashVerifying checks the download against the catalog digest.
	PhaseHashVerifying Phase = "hash-verifying"
	// PhaseAugmenting installs pip into the artifact.
	PhaseAugmenting Phase = "augmenting"
	// PhaseValidating runs the capability checks.
	PhaseValidating Phase = "validating"
	// PhasePublishing hands the staged artifact to the sink.
	PhasePublishing Phase = "publishing"
	// PhasePublished is the terminal success state.
	PhasePublished Phase = "published"
)

// Phases lists the pipeline states in order.
func Phases() []Phase {
	return []Phase{
		PhaseDiscovered,
		PhaseDownloading,
		PhaseHashVerifying,
		PhaseAugmenting,
		PhaseValidating,
		PhasePublishing,
		PhasePublished,
	}
}

// PhaseError reports the phase an artifact failed in.
type PhaseError struct {
	// Identity is the artifact being built.
	Identity pybi.Identity
	// Phase is the phase that failed.
	Phase Phase
	// Err is the cause.
	Err error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Identity, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
