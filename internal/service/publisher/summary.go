package publisher

import (
	"errors"

	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
	"github.com/oshokin/pybi-publisher/internal/service/builder"
)

// ErrArtifactsFailed is returned when at least one artifact failed.
var ErrArtifactsFailed = errors.New("one or more artifacts failed")

// Failure describes one failed artifact.
type Failure struct {
	// Identity is the artifact that failed.
	Identity pybi.Identity
	// Phase is where it failed.
	Phase builder.Phase
	// Err is the cause.
	Err error
}

// Summary reports the outcome of a run.
type Summary struct {
	// RunID identifies the run in logs and history.
	RunID string
	// Discovered is the number of links in the index.
	Discovered int
	// Targeted is the number of links for targeted platforms.
	Targeted int
	// Published lists identities built and published during the run.
	Published []pybi.Identity
	// Skipped lists identities already published or repeated in the index.
	Skipped []pybi.Identity
	// Pending lists identities a dry run would build.
	Pending []pybi.Identity
	// Failed lists failed artifacts.
	Failed []Failure
}
