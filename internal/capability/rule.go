package capability

import (
	"errors"
	"fmt"

	goversion "github.com/hashicorp/go-version"

	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
)

// Kind selects how a capability is exercised inside an unpacked interpreter.
type Kind string

const (
	// KindImport imports a standard module.
	KindImport Kind = "import"
	// KindVenv builds an isolated environment and runs its interpreter.
	KindVenv Kind = "venv"
	// KindPackage installs a package into an isolated environment and runs its entry point.
	KindPackage Kind = "package"
)

// ErrInvalidRule is returned for rule table entries that cannot be compiled.
var ErrInvalidRule = errors.New("invalid capability rule")

// Capability is one check the validator must run.
type Capability struct {
	// Name identifies the capability in logs and errors.
	Name string
	// Kind selects the check.
	Kind Kind
	// Module is the module imported by KindImport checks.
	Module string
	// Package is the distribution installed by KindPackage checks.
	Package string
	// EntryPoint is the console script run after a KindPackage install.
	EntryPoint string
}

// RuleSpec is the serialized form of a rule.
type RuleSpec struct {
	// Capability is the capability name.
	Capability string `yaml:"capability" json:"capability"`
	// Kind defaults to import.
	Kind Kind `yaml:"kind,omitempty" json:"kind,omitempty"`
	// Module defaults to the capability name for import checks.
	Module string `yaml:"module,omitempty" json:"module,omitempty"`
	// Package is required for package checks.
	Package string `yaml:"package,omitempty" json:"package,omitempty"`
	// EntryPoint defaults to the package name.
	EntryPoint string `yaml:"entry_point,omitempty" json:"entry_point,omitempty"`
	// Version is an optional constraint such as ">=3.9".
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
	// Marker is an optional platform expression such as `sys_platform != "win32"`.
	Marker string `yaml:"marker,omitempty" json:"marker,omitempty"`
}

// Rule is a compiled predicate over an identity.
type Rule struct {
	capability  Capability
	constraints goversion.Constraints
	marker      *Marker
}

// Compile validates spec and returns the executable rule.
func Compile(spec RuleSpec) (Rule, error) {
	if spec.Capability == "" {
		return Rule{}, fmt.Errorf("empty capability name: %w", ErrInvalidRule)
	}

	capability := Capability{
		Name:       spec.Capability,
		Kind:       spec.Kind,
		Module:     spec.Module,
		Package:    spec.Package,
		EntryPoint: spec.EntryPoint,
	}

	if capability.Kind == "" {
		capability.Kind = KindImport
	}

	switch capability.Kind {
	case KindImport:
		if capability.Module == "" {
			capability.Module = capability.Name
		}
	case KindVenv:
	case KindPackage:
		if capability.Package == "" {
			return Rule{}, fmt.Errorf("%s: package check without package: %w", spec.Capability, ErrInvalidRule)
		}

		if capability.EntryPoint == "" {
			capability.EntryPoint = capability.Package
		}
	default:
		return Rule{}, fmt.Errorf("%s: unknown kind %q: %w", spec.Capability, capability.Kind, ErrInvalidRule)
	}

	rule := Rule{capability: capability}

	if spec.Version != "" {
		constraints, err := goversion.NewConstraint(spec.Version)
		if err != nil {
			return Rule{}, fmt.Errorf("%s: version %q: %w", spec.Capability, spec.Version, errors.Join(ErrInvalidRule, err))
		}

		rule.constraints = constraints
	}

	if spec.Marker != "" {
		marker, err := ParseMarker(spec.Marker)
		if err != nil {
			return Rule{}, fmt.Errorf("%s: %w", spec.Capability, errors.Join(ErrInvalidRule, err))
		}

		rule.marker = marker
	}

	return rule, nil
}

// Capability returns the check this rule enables.
func (r Rule) Capability() Capability {
	return r.capability
}

// Satisfied reports whether the rule applies to identity running on family.
// A rule without a constraint and a marker is always satisfied.
func (r Rule) Satisfied(identity pybi.Identity, family string) bool {
	if r.constraints != nil && (identity.Version == nil || !r.constraints.Check(identity.Version)) {
		return false
	}

	return r.marker.Evaluate(Environment{
		VariableSysPlatform: family,
		VariablePlatformTag: identity.Platform,
	})
}
