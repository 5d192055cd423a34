package ledger

import (
	"context"
	"errors"

	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
)

// ErrPublication is returned when an artifact cannot be written to the sink.
var ErrPublication = errors.New("publication failed")

// Ledger is a destination sink together with its record of published identities.
type Ledger interface {
	// Snapshot lists the identities already published.
	Snapshot(ctx context.Context) (Set, error)
	// Publish stores the staged artifact under the file name derived from identity.
	Publish(ctx context.Context, identity pybi.Identity, stagedPath string) error
	// String describes the sink for logs.
	String() string
}

// Set is a set of identities keyed structurally.
type Set struct {
	keys map[pybi.Key]struct{}
}

// NewSet returns a set holding identities.
func NewSet(identities ...pybi.Identity) Set {
	s := Set{keys: make(map[pybi.Key]struct{}, len(identities))}
	for _, identity := range identities {
		s.Add(identity)
	}

	return s
}

// Contains reports whether identity is in the set.
func (s Set) Contains(identity pybi.Identity) bool {
	_, ok := s.keys[identity.Key()]
	return ok
}

// Add inserts identity.
func (s *Set) Add(identity pybi.Identity) {
	if s.keys == nil {
		s.keys = make(map[pybi.Key]struct{})
	}

	s.keys[identity.Key()] = struct{}{}
}

// Len returns the number of identities in the set.
func (s Set) Len() int {
	return len(s.keys)
}
