package capability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pybi-publisher/internal/domain/pybi"
)

func mustIdentity(t *testing.T, name string) pybi.Identity {
	t.Helper()

	identity, err := pybi.Parse(name)
	require.NoError(t, err)

	return identity
}

func mustRule(t *testing.T, spec RuleSpec) Rule {
	t.Helper()

	rule, err := Compile(spec)
	require.NoError(t, err)

	return rule
}

// TestRuleSatisfied mirrors the single-rule checks against a windows 3.9.2 build.
func TestRuleSatisfied(t *testing.T) {
	t.Parallel()

	identity := mustIdentity(t, "cpython_unofficial-3.9.2-win32.pybi")

	tests := []struct {
		name     string
		spec     RuleSpec
		expected bool
	}{
		{"unconditional", RuleSpec{Capability: "m"}, true},
		{"version satisfied", RuleSpec{Capability: "m", Version: ">=3.9"}, true},
		{"version not satisfied", RuleSpec{Capability: "m", Version: "<3.9"}, false},
		{"marker satisfied", RuleSpec{Capability: "m", Marker: `sys_platform=="win32"`}, true},
		{"marker not satisfied", RuleSpec{Capability: "m", Marker: `sys_platform=="linux"`}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.expected, mustRule(t, tt.spec).Satisfied(identity, "win32"))
		})
	}
}

// TestRuleVersionRange checks that a lower bound ignores the platform entirely.
func TestRuleVersionRange(t *testing.T) {
	t.Parallel()

	rule := mustRule(t, RuleSpec{Capability: "m", Version: ">=3.9"})

	for _, platform := range []string{"win32", "manylinux_2_17_x86_64", "macosx_11_0_universal2"} {
		require.True(t, rule.Satisfied(mustIdentity(t, "cpython-3.9.2-"+platform), "any"), platform)
		require.False(t, rule.Satisfied(mustIdentity(t, "cpython-3.8.10-"+platform), "any"), platform)
	}

	// Pre-releases only match constraints that name a pre-release.
	require.False(t, rule.Satisfied(mustIdentity(t, "cpython-3.10.0a1-win32"), "win32"))
}

// TestRuleNotWindows checks that a not-windows marker ignores the version entirely.
func TestRuleNotWindows(t *testing.T) {
	t.Parallel()

	rule := mustRule(t, RuleSpec{Capability: "curses", Marker: `sys_platform != "win32"`})

	for _, version := range []string{"3.7.9", "3.9.2", "3.11.0"} {
		require.True(t, rule.Satisfied(mustIdentity(t, "cpython-"+version+"-manylinux_2_17_x86_64"), "linux"))
		require.False(t, rule.Satisfied(mustIdentity(t, "cpython-"+version+"-win_amd64"), "win32"))
	}
}

// TestCompile_Invalid covers rejected rule specs.
func TestCompile_Invalid(t *testing.T) {
	t.Parallel()

	for _, spec := range []RuleSpec{
		{},
		{Capability: "m", Kind: "shell"},
		{Capability: "m", Kind: KindPackage},
		{Capability: "m", Version: "at least three"},
		{Capability: "m", Marker: "os_name == 'nt'"},
	} {
		_, err := Compile(spec)
		require.ErrorIs(t, err, ErrInvalidRule, spec)
	}

	rule := mustRule(t, RuleSpec{Capability: "black", Kind: KindPackage, Package: "black"})
	require.Equal(t, "black", rule.Capability().EntryPoint)
	require.Equal(t, "zlib", mustRule(t, RuleSpec{Capability: "zlib"}).Capability().Module)
}

// TestDefaultEngine_EveryPlatformHasAFamily enumerates the embedded table.
func TestDefaultEngine_EveryPlatformHasAFamily(t *testing.T) {
	t.Parallel()

	engine, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, engine.Platforms())

	for _, platform := range engine.Platforms() {
		family, err := engine.PlatformFamily(platform)
		require.NoError(t, err, platform)
		require.Contains(t, []string{"win32", "linux", "darwin"}, family)

		capabilities, err := engine.ApplicableCapabilities(mustIdentity(t, "cpython-3.10.1-"+platform))
		require.NoError(t, err)
		require.NotEmpty(t, capabilities)
	}
}

// TestDefaultEngine_Order checks declaration order and platform-specific membership.
func TestDefaultEngine_Order(t *testing.T) {
	t.Parallel()

	engine, err := Default()
	require.NoError(t, err)

	linux, err := engine.ApplicableCapabilities(mustIdentity(t, "cpython-3.9.2-manylinux_2_17_x86_64"))
	require.NoError(t, err)
	require.Equal(t, []string{
		"ctypes", "hashlib", "lzma", "sqlite3", "ssl", "tkinter", "uuid", "venv", "zlib",
		"curses", "readline", "dbm.gnu", "dbm.ndbm", "_uuid", "isolated-environment",
	}, Names(linux))

	windows, err := engine.ApplicableCapabilities(mustIdentity(t, "cpython-3.9.2-win_amd64"))
	require.NoError(t, err)
	require.Equal(t, []string{
		"ctypes", "hashlib", "lzma", "sqlite3", "ssl", "tkinter", "uuid", "venv", "zlib",
		"_uuid", "isolated-environment",
	}, Names(windows))

	oldWindows, err := engine.ApplicableCapabilities(mustIdentity(t, "cpython-3.8.10-win32"))
	require.NoError(t, err)
	require.NotContains(t, Names(oldWindows), "_uuid")
}

// TestUnknownPlatform ensures an unmapped tag is an error, never an empty check list.
func TestUnknownPlatform(t *testing.T) {
	t.Parallel()

	engine, err := Default()
	require.NoError(t, err)

	capabilities, err := engine.ApplicableCapabilities(mustIdentity(t, "cpython-3.9.2-freebsd_13_amd64"))
	require.ErrorIs(t, err, ErrUnknownPlatform)
	require.Nil(t, capabilities)
}

// TestLoad reads rule tables from YAML and JSONC files.
func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
platforms:
  linux_x86_64: linux
rules:
  - capability: ssl
  - capability: black
    kind: package
    package: black
`), 0o600))

	jsoncPath := filepath.Join(dir, "rules.jsonc")
	require.NoError(t, os.WriteFile(jsoncPath, []byte(`{
  // comments and trailing commas are allowed
  "platforms": {"linux_x86_64": "linux",},
  "rules": [
    {"capability": "ssl"},
    {"capability": "black", "kind": "package", "package": "black"},
  ],
}`), 0o600))

	for _, path := range []string{yamlPath, jsoncPath} {
		engine, err := Load(path)
		require.NoError(t, err, path)

		capabilities, err := engine.ApplicableCapabilities(mustIdentity(t, "cpython-3.12.1-linux_x86_64"))
		require.NoError(t, err)
		require.Equal(t, []Capability{
			{Name: "ssl", Kind: KindImport, Module: "ssl"},
			{Name: "black", Kind: KindPackage, Package: "black", EntryPoint: "black"},
		}, capabilities)
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	emptyPath := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, []byte("rules: []\n"), 0o600))

	_, err = Load(emptyPath)
	require.ErrorIs(t, err, errEmptyTable)
}
