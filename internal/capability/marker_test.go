package capability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMarkerEvaluate covers comparison operators and boolean composition.
func TestMarkerEvaluate(t *testing.T) {
	t.Parallel()

	env := Environment{VariableSysPlatform: "linux", VariablePlatformTag: "manylinux_2_17_x86_64"}

	tests := []struct {
		expression string
		expected   bool
	}{
		{`sys_platform == "linux"`, true},
		{`sys_platform=="win32"`, false},
		{`sys_platform != 'win32'`, true},
		{`"linux" == sys_platform`, true},
		{`"manylinux" in platform_tag`, true},
		{`platform_tag in "manylinux_2_17_x86_64 win32"`, true},
		{`"win" not in platform_tag`, true},
		{`sys_platform == "linux" and platform_tag == "win32"`, false},
		{`sys_platform == "darwin" or sys_platform == "linux"`, true},
		{`sys_platform == "darwin" or sys_platform == "linux" and platform_tag == "x"`, false},
		{`(sys_platform == "darwin" or sys_platform == "linux") and "x86_64" in platform_tag`, true},
	}

	for _, tt := range tests {
		marker, err := ParseMarker(tt.expression)
		require.NoError(t, err, tt.expression)
		require.Equal(t, tt.expected, marker.Evaluate(env), tt.expression)
		require.Equal(t, tt.expression, marker.String())
	}
}

// TestParseMarker_Invalid lists expressions the parser must reject.
func TestParseMarker_Invalid(t *testing.T) {
	t.Parallel()

	for _, expression := range []string{
		``,
		`sys_platform`,
		`sys_platform = "linux"`,
		`sys_platform == "linux`,
		`os_name == "nt"`,
		`"a" == "b"`,
		`(sys_platform == "linux"`,
		`sys_platform == "linux")`,
		`sys_platform not "linux"`,
		`sys_platform == "linux" and`,
		`sys_platform < "linux"`,
	} {
		_, err := ParseMarker(expression)
		require.ErrorIs(t, err, ErrInvalidMarker, expression)
	}
}

// TestNilMarker ensures an absent marker is always satisfied.
func TestNilMarker(t *testing.T) {
	t.Parallel()

	var marker *Marker

	require.True(t, marker.Evaluate(nil))
	require.Empty(t, marker.String())
}
