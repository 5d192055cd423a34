package capability

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
)

// ErrUnknownPlatform is returned for platform tags missing from the family table.
var ErrUnknownPlatform = errors.New("unknown platform")

// Engine evaluates a compiled rule table. It is immutable after construction.
type Engine struct {
	platforms map[string]string
	rules     []Rule
}

// NewEngine compiles table.
func NewEngine(table Table) (*Engine, error) {
	if len(table.Platforms) == 0 {
		return nil, errEmptyTable
	}

	platforms := make(map[string]string, len(table.Platforms))

	for tag, family := range table.Platforms {
		if tag == "" || family == "" {
			return nil, fmt.Errorf("platform %q maps to %q: %w", tag, family, ErrInvalidRule)
		}

		platforms[tag] = family
	}

	rules := make([]Rule, 0, len(table.Rules))

	for i, spec := range table.Rules {
		rule, err := Compile(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		rules = append(rules, rule)
	}

	return &Engine{platforms: platforms, rules: rules}, nil
}

// Default returns an engine over the embedded rule table.
func Default() (*Engine, error) {
	table, err := DefaultTable()
	if err != nil {
		return nil, err
	}

	return NewEngine(table)
}

// Load returns an engine over the table at path, or the embedded table when path is empty.
func Load(path string) (*Engine, error) {
	if path == "" {
		return Default()
	}

	table, err := LoadTable(path)
	if err != nil {
		return nil, err
	}

	return NewEngine(table)
}

// PlatformFamily maps a concrete platform tag to its family.
func (e *Engine) PlatformFamily(platform string) (string, error) {
	family, ok := e.platforms[platform]
	if !ok {
		return "", fmt.Errorf("%q: %w", platform, ErrUnknownPlatform)
	}

	return family, nil
}

// Platforms returns every known platform tag, sorted.
func (e *Engine) Platforms() []string {
	return slices.Sorted(maps.Keys(e.platforms))
}

// ApplicableCapabilities returns the checks that apply to identity, in declaration order.
func (e *Engine) ApplicableCapabilities(identity pybi.Identity) ([]Capability, error) {
	family, err := e.PlatformFamily(identity.Platform)
	if err != nil {
		return nil, err
	}

	capabilities := make([]Capability, 0, len(e.rules))

	for _, rule := range e.rules {
		if rule.Satisfied(identity, family) {
			capabilities = append(capabilities, rule.Capability())
		}
	}

	return capabilities, nil
}

// Names returns the names of capabilities.
func Names(capabilities []Capability) []string {
	names := make([]string, 0, len(capabilities))
	for _, capability := range capabilities {
		names = append(names, capability.Name)
	}

	return names
}
