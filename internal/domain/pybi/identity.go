package pybi

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

const (
	// DefaultExtension is the file extension of published artifacts.
	DefaultExtension = ".pybi"

	// separator joins the three identity segments in a file name.
	separator = "-"

	// windowsExecutableSuffix is appended to executables on Windows platforms.
	windowsExecutableSuffix = ".exe"
)

// ErrMalformedName is returned when a file name is not <implementation>-<version>-<platform>.<ext>.
var ErrMalformedName = errors.New("malformed artifact name")

// Identity names one artifact. It is immutable once parsed.
type Identity struct {
	// Implementation is the interpreter implementation, e.g. cpython_unofficial.
	Implementation string
	// Version is the interpreter version including any pre-release part.
	Version *goversion.Version
	// Platform is the platform tag, e.g. win_amd64 or manylinux_2_17_x86_64.
	Platform string
}

// Key is the comparable form of an Identity used for sets and maps.
// Versions are normalised, so 3.9 and 3.9.0 produce the same key.
type Key struct {
	Implementation string
	Version        string
	Platform       string
}

// Parse builds an Identity from an artifact file name or path.
// The last two hyphen-separated segments are the version and platform;
// everything before them is the implementation.
func Parse(name string) (Identity, error) {
	base := path.Base(filepath.ToSlash(name))
	if extension := path.Ext(base); !strings.Contains(extension, separator) {
		base = strings.TrimSuffix(base, extension)
	}

	platformAt := strings.LastIndex(base, separator)
	if platformAt < 0 {
		return Identity{}, fmt.Errorf("%q: expected <implementation>-<version>-<platform>: %w", name, ErrMalformedName)
	}

	versionAt := strings.LastIndex(base[:platformAt], separator)
	if versionAt < 0 {
		return Identity{}, fmt.Errorf("%q: expected <implementation>-<version>-<platform>: %w", name, ErrMalformedName)
	}

	var (
		implementation = base[:versionAt]
		rawVersion     = base[versionAt+1 : platformAt]
		platform       = base[platformAt+1:]
	)

	if implementation == "" || rawVersion == "" || platform == "" {
		return Identity{}, fmt.Errorf("%q: empty name segment: %w", name, ErrMalformedName)
	}

	parsedVersion, err := goversion.NewVersion(rawVersion)
	if err != nil {
		return Identity{}, fmt.Errorf("%q: invalid version %q: %w", name, rawVersion, errors.Join(ErrMalformedName, err))
	}

	return Identity{
		Implementation: implementation,
		Version:        parsedVersion,
		Platform:       platform,
	}, nil
}

// Key returns the comparable form of the identity.
func (id Identity) Key() Key {
	var normalized string
	if id.Version != nil {
		normalized = id.Version.String()
	}

	return Key{
		Implementation: id.Implementation,
		Version:        normalized,
		Platform:       id.Platform,
	}
}

// Equal reports whether both identities name the same artifact.
func (id Identity) Equal(other Identity) bool {
	return id.Key() == other.Key()
}

// VersionString returns the version exactly as it appeared in the file name.
func (id Identity) VersionString() string {
	if id.Version == nil {
		return ""
	}

	return id.Version.Original()
}

// String returns <implementation>-<version>-<platform>.
func (id Identity) String() string {
	return strings.Join([]string{id.Implementation, id.VersionString(), id.Platform}, separator)
}

// Filename returns the artifact file name for the identity with the given extension.
// Parse(id.Filename(ext)) yields an identity equal to id.
func (id Identity) Filename(extension string) string {
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}

	return id.String() + extension
}

// ReleaseTag returns the hosted release tag the identity is published under.
func (id Identity) ReleaseTag() string {
	return "v" + id.VersionString()
}

// IsWindows reports whether the platform uses the Windows layout.
func (id Identity) IsWindows() bool {
	return id.Platform == "win32" || strings.HasPrefix(id.Platform, "win_")
}

// IsMacOS reports whether the platform uses the macOS framework layout.
func (id Identity) IsMacOS() bool {
	return strings.HasPrefix(id.Platform, "macosx")
}

// BinaryDir returns the slash-separated directory, relative to the artifact root,
// that holds the interpreter and installed entry points.
func (id Identity) BinaryDir() string {
	switch {
	case id.IsWindows():
		return "Scripts"
	case id.IsMacOS():
		return path.Join("Python.framework", "Versions", id.majorMinor(), "bin")
	default:
		return "bin"
	}
}

// ExecutableName appends the platform executable suffix to base.
func (id Identity) ExecutableName(base string) string {
	if id.IsWindows() {
		return base + windowsExecutableSuffix
	}

	return base
}

// InterpreterPath returns the path of the python executable inside an artifact unpacked at root.
func (id Identity) InterpreterPath(root string) string {
	return id.EntryPointPath(root, "python")
}

// EntryPointPath returns the path of a named executable in the binary directory under root.
func (id Identity) EntryPointPath(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(id.BinaryDir()), id.ExecutableName(name))
}

// majorMinor returns "<major>.<minor>" of the version.
func (id Identity) majorMinor() string {
	if id.Version == nil {
		return ""
	}

	segments := id.Version.Segments()
	for len(segments) < 2 {
		segments = append(segments, 0)
	}

	return fmt.Sprintf("%d.%d", segments[0], segments[1])
}
